package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otcheredev/dicom-store-gateway/internal/config"
	"github.com/otcheredev/dicom-store-gateway/internal/middleware"
	"github.com/otcheredev/dicom-store-gateway/internal/repository"
	"github.com/otcheredev/dicom-store-gateway/pkg/aggregator"
)

// NewRouter builds the ops HTTP surface documented in spec.md §6's carried
// ambient stack, grounded on the teacher's cmd/server/main.go router setup.
func NewRouter(cfg config.OpsConfig, peerRepo *repository.PeerRepository, agg *aggregator.Aggregator) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := NewHealthHandler()
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	peers := NewPeerHandler(peerRepo)
	studies := NewStudyHandler(agg)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/peers", peers.List)
		r.Post("/peers", peers.Create)
		r.Get("/peers/{id}", peers.Get)
		r.Get("/studies/{studyUID}", studies.Get)
	})

	return r
}
