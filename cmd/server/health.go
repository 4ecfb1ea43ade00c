package main

import (
	"context"
	"net/http"
	"time"

	"gatehouse/pkg/platform/httputil"
)

const healthTimeout = 3 * time.Second

// health maps a backend name to its probe.
type health map[string]func(ctx context.Context) error

type healthResponse struct {
	Status   string            `json:"status"`
	Storage  string            `json:"storage"`
	Backends map[string]string `json:"backends,omitempty"`
}

func (h health) handler(storage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		res := healthResponse{Status: "ok", Storage: storage}
		if len(h) > 0 {
			res.Backends = make(map[string]string, len(h))
		}
		for name, probe := range h {
			if err := probe(ctx); err != nil {
				res.Status = "degraded"
				res.Backends[name] = "down"
				continue
			}
			res.Backends[name] = "up"
		}
		status := http.StatusOK
		if res.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, res)
	}
}
