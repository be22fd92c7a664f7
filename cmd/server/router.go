package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelsong/reelsong-api/internal/api"
	apiMiddleware "github.com/reelsong/reelsong-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	songHandler := api.NewSongHandler(app.songService)
	healthHandler := api.NewHealthHandler(app.db)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/find-song", songHandler.FindSong)
		r.Get("/task-status/{taskID}", songHandler.TaskStatus)
		r.Get("/stats", songHandler.Stats)
	})

	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
