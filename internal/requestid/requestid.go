// Package requestid provides request ID propagation via context.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header request IDs travel in.
const Header = "X-Request-ID"

// maxLen bounds an inbound request ID before it reaches the logs.
const maxLen = 128

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New generates a new request ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// FromHeader reuses an inbound request ID when it is present and printable,
// and generates one otherwise.
func FromHeader(ctx context.Context, value string) (context.Context, string) {
	if value == "" || len(value) > maxLen {
		return New(ctx)
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x21 || value[i] > 0x7e {
			return New(ctx)
		}
	}
	return WithRequestID(ctx, value), value
}
