// Package trace threads a per-request correlation id through context so a
// request's log lines can be joined with the decisions it produced.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey int

const key ctxKey = 1

// Header carries the correlation id on requests and responses. Callers may
// supply their own; otherwise the middleware mints one.
const Header = "X-Gatehouse-Trace"

func NewID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key, id)
}

func From(ctx context.Context) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
