// Package api implements the Command/Query API of spec.md §4.7: an HTTP
// transport over the Watch Supervisor, Cycle Pipeline, and Activity Log.
// Grounded on the teacher's internal/api/router.go (mux.Router +
// middleware stack shape, collapsed here from two versioned route trees
// down to one, since this spec has no v1/v2 compatibility surface to
// maintain) and cmd/server/handlers (health/websocket conventions).
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vitaliisemenov/pagewatch/internal/api/middleware"
)

// Config bundles everything NewRouter needs to build the HTTP surface.
type Config struct {
	Handlers *Handlers
	Stream   *ActivityStream
	Logger   *slog.Logger
}

// NewRouter builds the full Command/Query API router: target lifecycle,
// activity log, send_now, health/readiness, metrics, websocket tail, and
// swagger docs.
//
// @title Page-Watch Engine API
// @version 1.0
// @description Command/Query API for the page-watch engine's watch targets and activity log.
// @BasePath /api/v1
func NewRouter(cfg Config) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(cfg.Logger))
	router.Use(middleware.Recover(cfg.Logger))

	router.HandleFunc("/healthz", cfg.Handlers.Healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", cfg.Handlers.Readyz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/targets", cfg.Handlers.StartTarget).Methods(http.MethodPost)
	v1.HandleFunc("/targets", cfg.Handlers.StatusAll).Methods(http.MethodGet)
	v1.HandleFunc("/targets/{id}", cfg.Handlers.Status).Methods(http.MethodGet)
	v1.HandleFunc("/targets/{id}", cfg.Handlers.StopTarget).Methods(http.MethodDelete)

	v1.HandleFunc("/send_now", cfg.Handlers.SendNow).Methods(http.MethodPost)

	v1.HandleFunc("/activity_log", cfg.Handlers.GetActivityLog).Methods(http.MethodGet)
	v1.HandleFunc("/activity_log", cfg.Handlers.ClearActivityLog).Methods(http.MethodDelete)

	if cfg.Stream != nil {
		v1.HandleFunc("/activity/stream", cfg.Stream.ServeHTTP)
	}

	router.PathPrefix("/swagger").Handler(httpSwagger.WrapHandler)

	return router
}
