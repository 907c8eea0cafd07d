package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vendfleet-backend/internal/handlers"
	"vendfleet-backend/internal/middleware"
)

func NewRouter(
	materialRequestHandler *handlers.MaterialRequestHandler,
	realtimeHandler *handlers.RealtimeHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()
	// Runs after route matching so metrics are labelled by path template.
	r.Use(middleware.MetricsMiddleware)

	// Material request workflow API
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Authenticate)
	materialRequestHandler.RegisterRoutes(api)

	// Realtime dashboard feed
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(authMiddleware.Authenticate)
	ws.HandleFunc("/material-requests", realtimeHandler.MaterialRequestEvents).Methods("GET")

	// Health checks (no auth)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", healthHandler.DetailedHealth).Methods("GET")

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Wrap adds the outer middleware chain: panic recovery, then CORS.
func Wrap(router http.Handler, recovery, cors func(http.Handler) http.Handler) http.Handler {
	return recovery(cors(router))
}
