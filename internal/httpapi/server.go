// Package httpapi exposes the chat API (spec §6) over HTTP, routed with
// the standard library's Go 1.22+ method-pattern ServeMux.
package httpapi

import (
	"net/http"

	"inkwell/internal/chatservice"
)

// Server exposes HTTP endpoints for the chat API.
type Server struct {
	service *chatservice.Service
	mux     *http.ServeMux
}

// NewServer creates the HTTP API server wired to the chat service.
func NewServer(service *chatservice.Service) *Server {
	s := &Server{service: service, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("DELETE /chat/history", s.handleDeleteHistory)
	s.mux.HandleFunc("GET /chat/messages", s.handleListMessages)
	s.mux.HandleFunc("GET /chat/archived", s.handleListArchived)
	s.mux.HandleFunc("POST /chat/unarchive", s.handleUnarchive)
	s.mux.HandleFunc("POST /chat/import", s.handleImport)
	s.mux.HandleFunc("GET /chat/export", s.handleExport)
}
