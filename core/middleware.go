package core

import (
	"context"

	"github.com/shrek82/jormx/hydrate"
)

// Component is the base interface for all JORM components/middleware.
type Component interface {
	Name() string
	Init(db *DB) error
	Shutdown() error
}

// QueryFunc is the function type for the next step in the middleware chain.
type QueryFunc func(ctx context.Context, query *Query) (*hydrate.Result, error)

// QueryMiddleware is the interface for query interceptors. Every hydrating
// statement passes through the chain, lazy loads of proxies and
// collections included.
type QueryMiddleware interface {
	Component
	Process(ctx context.Context, query *Query, next QueryFunc) (*hydrate.Result, error)
}

// Use initializes and appends middlewares. The first one registered is the
// outermost.
func (db *DB) Use(mws ...QueryMiddleware) error {
	for _, mw := range mws {
		if err := mw.Init(db); err != nil {
			return err
		}
		db.logger.Debug("middleware %s enabled", mw.Name())
		db.middlewares = append(db.middlewares, mw)
	}
	return nil
}

func (db *DB) chain(final QueryFunc) QueryFunc {
	next := final
	for i := len(db.middlewares) - 1; i >= 0; i-- {
		mw, inner := db.middlewares[i], next
		next = func(ctx context.Context, q *Query) (*hydrate.Result, error) {
			return mw.Process(ctx, q, inner)
		}
	}
	return next
}
