package middleware

import (
	"context"

	"github.com/shrek82/jormx/core"
	"github.com/shrek82/jormx/hydrate"
)

type contextKey string

// Context keys the tracing middleware copies into query logging.
const (
	RequestIDKey contextKey = "request_id"
	UserIPKey    contextKey = "user_ip"
	TraceIDKey   contextKey = "trace_id"
)

// TracingMiddleware attaches request identifiers found in the context to
// the logging of the query, so lazy loads triggered inside a request can
// be traced back to it.
type TracingMiddleware struct {
	keys []contextKey
}

func NewTracing() *TracingMiddleware {
	return &TracingMiddleware{keys: []contextKey{RequestIDKey, UserIPKey, TraceIDKey}}
}

func (m *TracingMiddleware) Name() string {
	return "Tracing"
}

func (m *TracingMiddleware) Init(db *core.DB) error {
	return nil
}

func (m *TracingMiddleware) Shutdown() error {
	return nil
}

func (m *TracingMiddleware) Process(ctx context.Context, query *core.Query, next core.QueryFunc) (*hydrate.Result, error) {
	fields := make(map[string]any)
	for _, k := range m.keys {
		if v := ctx.Value(k); v != nil {
			fields[string(k)] = v
		}
	}
	if len(fields) > 0 {
		query.WithFields(fields)
	}
	return next(ctx, query)
}
