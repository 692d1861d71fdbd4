package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Tasks
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/complete", h.CompleteTask)
		r.Post("/tasks/{id}/fail", h.FailTask)

		// Agents
		r.Get("/agents/{agent}/tasks", h.ListAgentTasks)
		r.Get("/agents/{agent}/usage", h.GetAgentUsage)
		r.Get("/agents/{agent}/negotiations", h.ListAgentNegotiations)

		// Negotiations
		r.Post("/negotiations", h.CreateNegotiation)
		r.Get("/negotiations/{id}", h.GetNegotiation)
		r.Post("/negotiations/{id}/respond", h.RespondNegotiation)

		// Triggers
		r.Post("/proactive/scan", h.RunProactiveScan)
		r.Post("/selection/run", h.RunSelection)
	})
}
