package validators

import (
	"net/http"
	"strconv"

	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/pagination"
)

// PaginationFromQuery reads limit/offset query parameters and clamps them
// to the allowed range.
func PaginationFromQuery(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{}
	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be an integer")
		}
		params.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "offset must be an integer")
		}
		params.Offset = offset
	}
	return params.Normalize(), nil
}
