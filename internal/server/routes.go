package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Delete("/", s.clearAllSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.deleteSession)

			// Messages
			r.Post("/message", s.sendMessage)
			r.Delete("/message/{requestID}", s.removeRequest)
			r.Post("/message/{requestID}/resend", s.resendRequest)

			// Session operations
			r.Post("/abort", s.abortSession)
		})
	})

	// Cross-workspace transfers
	r.Route("/transfer", func(r chi.Router) {
		r.Post("/", s.createTransfer)
		r.Post("/claim", s.claimTransfer)
	})

	// Agents
	r.Get("/agent", s.listAgents)

	// Event streaming (SSE)
	r.Get("/event", s.sessionEvents)
	r.Get("/global/event", s.globalEvents)
}
