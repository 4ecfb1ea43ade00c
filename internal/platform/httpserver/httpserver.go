package httpserver

import (
	"net/http"
	"time"

	"gatehouse/internal/platform/config"
)

// Slow clients may not hold a connection open by trickling headers, whatever
// the body timeouts are.
const readHeaderTimeout = 5 * time.Second

// New builds the API server. Photo uploads arrive base64 encoded in the JSON
// body, so the read timeout bounds the whole request, not just headers.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
