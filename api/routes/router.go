package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetops/dispatch-backend/api/controllers"
	"github.com/fleetops/dispatch-backend/api/middleware"
	"github.com/fleetops/dispatch-backend/internal/tracker"
	"github.com/fleetops/dispatch-backend/pkg/config"
	"github.com/fleetops/dispatch-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	core controllers.Pinger,
	replica controllers.Pinger,
	tracking controllers.Pinger,
	loadService controllers.LoadService,
	trk tracker.Tracker,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, core, replica, tracking))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/loads", func(r chi.Router) {
		r.Post("/", controllers.CreateLoad(loadService, logg))
		r.Get("/", controllers.ListLoads(trk, logg))
		r.Get("/{loadId}", controllers.GetLoad(loadService, logg))
		r.Post("/{loadId}/transferred", controllers.MarkLoadTransferred(loadService, logg))
	})

	return r
}
