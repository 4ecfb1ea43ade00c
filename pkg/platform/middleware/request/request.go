// Package request assigns correlation ids to incoming requests.
package request

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gatehouse/pkg/requestcontext"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

const maxInboundIDLen = 64

// RequestID reuses a caller-supplied X-Request-ID when it is short and
// printable, otherwise generates one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if reqID == "" || len(reqID) > maxInboundIDLen || strings.ContainsAny(reqID, "\r\n\t ") {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
