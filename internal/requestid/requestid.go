package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// MetadataKey is the gRPC metadata key; HTTP uses the canonical Header form.
const (
	MetadataKey = "x-request-id"
	Header      = "X-Request-Id"
)

func FromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func New() string {
	return uuid.NewString()
}
