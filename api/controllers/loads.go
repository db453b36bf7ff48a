package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/dispatch-backend/api/responses"
	"github.com/fleetops/dispatch-backend/api/validators"
	"github.com/fleetops/dispatch-backend/internal/loads"
	"github.com/fleetops/dispatch-backend/internal/tracker"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/fleetops/dispatch-backend/pkg/pagination"
)

// LoadService is the workflow surface the load endpoints call.
type LoadService interface {
	ProcessLoad(ctx context.Context, driverCode string, orderIDs []int64, requesterID string) (*loads.Result, error)
	MarkTransferred(ctx context.Context, loadID string) error
	GetLoad(ctx context.Context, loadID string) (*tracker.Record, error)
}

// LoadLister pages through tracking records.
type LoadLister interface {
	List(ctx context.Context, page pagination.Params) ([]tracker.Record, error)
}

type createLoadRequest struct {
	DriverCode  string  `json:"driverCode" validate:"required"`
	OrderIDs    []int64 `json:"orderIds" validate:"required,min=1,unique"`
	RequesterID string  `json:"requesterId"`
}

func CreateLoad(svc LoadService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createLoadRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ProcessLoad(ctx, req.DriverCode, req.OrderIDs, req.RequesterID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func GetLoad(svc LoadService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		loadID := chi.URLParam(r, "loadId")
		if loadID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "loadId is required"))
			return
		}

		record, err := svc.GetLoad(ctx, loadID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

func ListLoads(lister LoadLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		page, err := validators.PaginationFromQuery(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		records, err := lister.List(ctx, page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"loads":  records,
			"limit":  page.Limit,
			"offset": page.Offset,
		})
	}
}

func MarkLoadTransferred(svc LoadService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		loadID := chi.URLParam(r, "loadId")
		if loadID == "" {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "loadId is required"))
			return
		}

		if err := svc.MarkTransferred(ctx, loadID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"loadId": loadID, "status": "transferred"})
	}
}
