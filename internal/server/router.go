package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.submit)
		r.Get("/messages", s.list)
		r.Get("/messages/{id}", s.status)
		r.Post("/messages/{id}/stop", s.stop)
		r.Get("/stream", s.streamHandler)
	})

	return r
}
