package gateway

import "net/http"

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/coach", s.handleCoach)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
