// Package jormx is the entry point of the ORM: open a DB, hydrate native
// queries through result set mappings, and hand out lazy references that
// load on first use.
package jormx

import (
	"context"

	"github.com/shrek82/jormx/core"
	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/proxy"
)

// Re-export core types and functions
type DB = core.DB
type Query = core.Query
type Tx = core.Tx
type Options = core.Options

type ResultSetMapping = hydrate.ResultSetMapping
type Result = hydrate.Result
type Identifier = model.Identifier

var (
	Open       = core.Open
	OpenConfig = core.OpenConfig
	NewMapping = hydrate.NewMapping
	ID         = model.ID
)

// Find returns the managed T identified by id.
func Find[T any](ctx context.Context, db *DB, id ...any) (*T, error) {
	var dest *T
	if err := db.Find(ctx, &dest, id...); err != nil {
		return nil, err
	}
	return dest, nil
}

// Reference returns the entity instance of a lazy reference to the T
// identified by id. Nothing is queried until a proxy accessor, or
// EnsureLoaded on the proxy, needs the state.
func Reference[T any](ctx context.Context, db *DB, id ...any) (*T, proxy.Proxy, error) {
	p, err := db.Reference(ctx, (*T)(nil), id...)
	if err != nil {
		return nil, nil, err
	}
	return p.Target().(*T), p, nil
}

// Entities returns the T elements of a query result.
func Entities[T any](r *Result) []T {
	return hydrate.Entities[T](r)
}
