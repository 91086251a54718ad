package core

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"time"

	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/logger"
)

// Executor defines the interface for executing SQL queries and commands.
// It is implemented by the connection pool and *Tx.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Query is a native SQL statement paired with the mapping that turns its
// rows into entities.
type Query struct {
	db       *DB
	executor Executor
	rsm      *hydrate.ResultSetMapping
	sql      string
	args     []any
	ctx      context.Context
	opts     []hydrate.Option
	log      logger.Logger
	err      error
}

func newQuery(db *DB, executor Executor, rsm *hydrate.ResultSetMapping, sql string, args []any) *Query {
	q := &Query{
		db:       db,
		executor: executor,
		rsm:      rsm,
		sql:      sql,
		args:     args,
		ctx:      context.Background(),
		log:      db.logger,
	}
	if rsm == nil {
		q.err = fmt.Errorf("%w: nil result set mapping", ErrInvalidQuery)
	}
	return q
}

// WithContext sets the context for the query.
func (q *Query) WithContext(ctx context.Context) *Query {
	q.ctx = ctx
	return q
}

// WithHint passes hydration options such as hydrate.WithRefresh to the run.
func (q *Query) WithHint(opts ...hydrate.Option) *Query {
	q.opts = append(q.opts, opts...)
	return q
}

// WithFields attaches structured fields to the logging of this query.
func (q *Query) WithFields(fields map[string]any) *Query {
	q.log = q.log.WithFields(fields)
	return q
}

func (q *Query) SQL() string { return q.sql }

func (q *Query) Args() []any { return q.args }

// Result executes the query through the middleware chain and hydrates
// every row.
func (q *Query) Result() (*hydrate.Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	if strings.TrimSpace(q.sql) == "" {
		return nil, ErrInvalidSQL
	}
	return q.db.chain(execute)(q.ctx, q)
}

func execute(ctx context.Context, q *Query) (*hydrate.Result, error) {
	opts := append([]hydrate.Option{
		hydrate.WithLogger(q.log),
		hydrate.WithMetrics(q.db.metrics),
	}, q.opts...)
	h, err := hydrate.New(q.rsm, q.db.uow, opts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := q.executor.QueryContext(ctx, q.sql, q.args...)
	q.log.SQL(q.sql, time.Since(start), q.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	defer rows.Close()

	return h.HydrateAll(ctx, rowSeq(rows))
}

// Find hydrates the query into dest, a pointer to a slice whose element
// type every result element must be assignable to.
func (q *Query) Find(dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%w: Find needs a pointer to a slice, got %T", ErrInvalidQuery, dest)
	}
	res, err := q.Result()
	if err != nil {
		return err
	}
	slice := dv.Elem()
	elem := slice.Type().Elem()
	out := reflect.MakeSlice(slice.Type(), 0, res.Len())
	for _, v := range res.Values() {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || !rv.Type().AssignableTo(elem) {
			return fmt.Errorf("%w: result element %T is not a %s", ErrInvalidQuery, v, elem)
		}
		out = reflect.Append(out, rv)
	}
	slice.Set(out)
	return nil
}

// rowSeq streams rows as column maps. Byte slices are copied to strings
// since the driver reuses them between Next calls.
func rowSeq(rows *sql.Rows) iter.Seq2[hydrate.Row, error] {
	return func(yield func(hydrate.Row, error) bool) {
		columns, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, err)
				return
			}
			row := make(hydrate.Row, len(columns))
			for i, col := range columns {
				if b, ok := values[i].([]byte); ok {
					row[col] = string(b)
				} else {
					row[col] = values[i]
				}
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}
