package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/dispatch-backend/internal/loads"
	"github.com/fleetops/dispatch-backend/internal/tracker"
	"github.com/fleetops/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/fleetops/dispatch-backend/pkg/pagination"
)

type testLoadService struct {
	processFn func(ctx context.Context, driverCode string, orderIDs []int64, requesterID string) (*loads.Result, error)
	markFn    func(ctx context.Context, loadID string) error
	getFn     func(ctx context.Context, loadID string) (*tracker.Record, error)
}

func (s *testLoadService) ProcessLoad(ctx context.Context, driverCode string, orderIDs []int64, requesterID string) (*loads.Result, error) {
	if s.processFn != nil {
		return s.processFn(ctx, driverCode, orderIDs, requesterID)
	}
	return nil, nil
}

func (s *testLoadService) MarkTransferred(ctx context.Context, loadID string) error {
	if s.markFn != nil {
		return s.markFn(ctx, loadID)
	}
	return nil
}

func (s *testLoadService) GetLoad(ctx context.Context, loadID string) (*tracker.Record, error) {
	if s.getFn != nil {
		return s.getFn(ctx, loadID)
	}
	return nil, nil
}

type testLister struct {
	listFn func(ctx context.Context, page pagination.Params) ([]tracker.Record, error)
}

func (l *testLister) List(ctx context.Context, page pagination.Params) ([]tracker.Record, error) {
	if l.listFn != nil {
		return l.listFn(ctx, page)
	}
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withLoadID(req *http.Request, loadID string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("loadId", loadID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCreateLoadSuccess(t *testing.T) {
	called := false
	svc := &testLoadService{
		processFn: func(_ context.Context, driverCode string, orderIDs []int64, requesterID string) (*loads.Result, error) {
			called = true
			if driverCode != "D5" {
				t.Fatalf("unexpected driver %q", driverCode)
			}
			if len(orderIDs) != 2 || orderIDs[0] != 1001 || orderIDs[1] != 1002 {
				t.Fatalf("unexpected orders %v", orderIDs)
			}
			if requesterID != "u1" {
				t.Fatalf("unexpected requester %q", requesterID)
			}
			return &loads.Result{LoadID: "L1", DocumentID: "TRA000001"}, nil
		},
	}

	body := `{"driverCode":"D5","orderIds":[1001,1002],"requesterId":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loads", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateLoad(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if !called {
		t.Fatal("expected service called")
	}

	var envelope struct {
		Data loads.Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.LoadID != "L1" || envelope.Data.DocumentID != "TRA000001" {
		t.Fatalf("unexpected payload: %+v", envelope.Data)
	}
}

func TestCreateLoadValidation(t *testing.T) {
	svc := &testLoadService{
		processFn: func(context.Context, string, []int64, string) (*loads.Result, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	cases := []struct {
		name string
		body string
	}{
		{"missing driver", `{"orderIds":[1001]}`},
		{"no orders", `{"driverCode":"D5","orderIds":[]}`},
		{"duplicate orders", `{"driverCode":"D5","orderIds":[1001,1001]}`},
		{"unknown field", `{"driverCode":"D5","orderIds":[1001],"extra":true}`},
		{"malformed json", `{`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/loads", strings.NewReader(tc.body))
		resp := httptest.NewRecorder()
		CreateLoad(svc, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d", tc.name, resp.Code)
		}
	}
}

func TestCreateLoadErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"precondition", pkgerrors.New(pkgerrors.CodePrecondition, "driver D5 is inactive"), http.StatusUnprocessableEntity, "PRECONDITION_FAILED"},
		{"partial claim", pkgerrors.New(pkgerrors.CodePartialClaim, "claimed 1 of 2"), http.StatusConflict, "PARTIAL_CLAIM"},
		{"replication", pkgerrors.New(pkgerrors.CodeReplication, "replica down"), http.StatusBadGateway, "REPLICATION_FAILURE"},
		{"manual recovery", pkgerrors.New(pkgerrors.CodeManualRecovery, "finalize failed"), http.StatusConflict, "MANUAL_RECOVERY_REQUIRED"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		svc := &testLoadService{
			processFn: func(context.Context, string, []int64, string) (*loads.Result, error) {
				return nil, tc.err
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/loads",
			strings.NewReader(`{"driverCode":"D5","orderIds":[1001]}`))
		resp := httptest.NewRecorder()
		CreateLoad(svc, testLogger())(resp, req)

		if resp.Code != tc.status {
			t.Fatalf("%s: unexpected status %d", tc.name, resp.Code)
		}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("%s: decode response: %v", tc.name, err)
		}
		if envelope.Error.Code != tc.code {
			t.Fatalf("%s: unexpected code %q", tc.name, envelope.Error.Code)
		}
	}
}

func TestGetLoadSuccess(t *testing.T) {
	svc := &testLoadService{
		getFn: func(_ context.Context, loadID string) (*tracker.Record, error) {
			if loadID != "L1" {
				t.Fatalf("unexpected load id %q", loadID)
			}
			return &tracker.Record{LoadID: "L1", Status: enums.LoadStatusCompleted}, nil
		},
	}

	req := withLoadID(httptest.NewRequest(http.MethodGet, "/api/v1/loads/L1", nil), "L1")
	resp := httptest.NewRecorder()
	GetLoad(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data tracker.Record `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.LoadID != "L1" || envelope.Data.Status != enums.LoadStatusCompleted {
		t.Fatalf("unexpected payload: %+v", envelope.Data)
	}
}

func TestGetLoadNotFound(t *testing.T) {
	svc := &testLoadService{
		getFn: func(_ context.Context, loadID string) (*tracker.Record, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no tracking record")
		},
	}

	req := withLoadID(httptest.NewRequest(http.MethodGet, "/api/v1/loads/L404", nil), "L404")
	resp := httptest.NewRecorder()
	GetLoad(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestListLoadsPagination(t *testing.T) {
	lister := &testLister{
		listFn: func(_ context.Context, page pagination.Params) ([]tracker.Record, error) {
			if page.Limit != 10 || page.Offset != 20 {
				t.Fatalf("unexpected pagination: %+v", page)
			}
			return []tracker.Record{{LoadID: "L1"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/loads?limit=10&offset=20", nil)
	resp := httptest.NewRecorder()
	ListLoads(lister, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestListLoadsBadQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/loads?limit=abc", nil)
	resp := httptest.NewRecorder()
	ListLoads(&testLister{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestMarkLoadTransferred(t *testing.T) {
	svc := &testLoadService{
		markFn: func(_ context.Context, loadID string) error {
			if loadID != "L1" {
				t.Fatalf("unexpected load id %q", loadID)
			}
			return nil
		},
	}

	req := withLoadID(httptest.NewRequest(http.MethodPost, "/api/v1/loads/L1/transferred", nil), "L1")
	resp := httptest.NewRecorder()
	MarkLoadTransferred(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestMarkLoadTransferredConflict(t *testing.T) {
	svc := &testLoadService{
		markFn: func(context.Context, string) error {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "load is processing")
		},
	}

	req := withLoadID(httptest.NewRequest(http.MethodPost, "/api/v1/loads/L1/transferred", nil), "L1")
	resp := httptest.NewRecorder()
	MarkLoadTransferred(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
