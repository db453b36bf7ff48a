package controllers

import (
	"context"
	"net/http"

	"github.com/fleetops/dispatch-backend/api/responses"
	"github.com/fleetops/dispatch-backend/pkg/config"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
)

// Pinger is the health-check surface of the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Dispatch-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every backing store. Any failure reports the service
// not ready with the dependency that broke.
func HealthReady(cfg *config.Config, logg *logger.Logger, core, replica, tracking Pinger) http.HandlerFunc {
	checks := []struct {
		name   string
		pinger Pinger
	}{
		{"core_db", core},
		{"replica_db", replica},
		{"tracking_store", tracking},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Dispatch-Env", cfg.App.Env)
		for _, check := range checks {
			if check.pinger == nil {
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").
						WithDetails(map[string]string{"dependency": check.name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
