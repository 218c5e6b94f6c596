package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/steps", h.ListSteps)
		r.Post("/applications", h.CreateApplication)
		r.Route("/applications/{applicationId}", func(r chi.Router) {
			r.Post("/documents", withApplicationID(h.UploadDocument))
			r.Post("/verify", withApplicationID(h.StartVerification))
			r.Get("/status", withApplicationID(h.GetStatus))
			r.Put("/status", withApplicationID(h.UpdateStatus))
			r.Get("/results", withApplicationID(h.GetResults))
			r.Get("/audit", withApplicationID(h.GetAuditTrail))
			r.Post("/decision", withApplicationID(h.SubmitDecision))
		})
	})

	return r
}

func withApplicationID(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseApplicationID(chi.URLParam(r, "applicationId"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		next(w, r, id)
	}
}
