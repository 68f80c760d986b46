package security

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	requestIDHeader     = "X-Request-ID"

	// Inbound ids end up inside audit chain payloads, so they are bounded
	// and must be printable.
	maxCorrelationIDLen = 64
)

type correlationIDKey struct{}

// CorrelationID tags every request with an id that follows it through the
// request log, the audit chain, and the response headers. An inbound
// X-Correlation-ID wins, X-Request-ID from an upstream proxy is honored as a
// fallback, and anything oversized or unprintable is replaced.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := sanitizeCorrelationID(r.Header.Get(CorrelationIDHeader))
		if cid == "" {
			cid = sanitizeCorrelationID(r.Header.Get(requestIDHeader))
		}
		if cid == "" {
			cid = uuid.NewString()
		}

		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), cid)))
	})
}

// WithCorrelationID attaches an id outside the middleware path, for work that
// does not originate from a request.
func WithCorrelationID(ctx context.Context, cid string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, cid)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return s
	}
	return ""
}

func sanitizeCorrelationID(cid string) string {
	if len(cid) > maxCorrelationIDLen {
		return ""
	}
	for _, r := range cid {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return cid
}
