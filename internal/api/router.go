package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts every endpoint on a chi mux.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/sensor-data", h.HandleSensorData)
	r.Get("/data/latest", h.HandleLatest)
	r.Get("/data/history", h.HandleHistory)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/config", func(r chi.Router) {
		r.Get("/thresholds", h.HandleGetThresholds)
		r.Post("/thresholds", h.HandleUpdateThresholds)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/status", h.HandleAlertStatus)
		r.Post("/reset", h.HandleAlertReset)
	})

	r.Get("/notifications", h.HandleNotifications)
	r.Get("/healthz", h.HandleHealthz)

	return r
}
