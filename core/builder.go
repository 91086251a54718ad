package core

import (
	"strings"
	"sync"

	"github.com/shrek82/jormx/dialect"
)

// Builder assembles the SELECT statements the persisters run. Conditions
// are written with ? markers, rewritten to the dialect's placeholders on
// Build.
type Builder interface {
	// SetTable sets the target table for the SQL statement.
	SetTable(name string) Builder
	// Alias sets a table alias (e.g., "book t").
	Alias(alias string) Builder
	// Select specifies the already quoted expressions to retrieve.
	Select(columns ...string) Builder
	// Where adds an AND condition to the WHERE clause.
	Where(cond string, args ...any) Builder
	// Joins adds a raw JOIN clause (e.g., "JOIN book_tag j ON j.tag_id = t.id").
	Joins(query string, args ...any) Builder
	// OrderBy adds columns for the ORDER BY clause.
	OrderBy(columns ...string) Builder
	// Build generates the final SELECT statement and its arguments.
	Build() (string, []any)
}

// sqlBuilder is the default implementation of the Builder interface.
type sqlBuilder struct {
	dialect    dialect.Dialect
	table      string
	alias      string
	selectCols []string
	whereExpr  string
	whereArgs  []any
	joins      []string
	joinArgs   []any
	orderBy    []string
	sb         strings.Builder
}

var builderPool = sync.Pool{
	New: func() any {
		return &sqlBuilder{}
	},
}

// NewBuilder takes a builder for d from the pool.
func NewBuilder(d dialect.Dialect) Builder {
	b := builderPool.Get().(*sqlBuilder)
	b.Reset(d)
	return b
}

// PutBuilder returns a builder to the pool for reuse.
func PutBuilder(b Builder) {
	if sb, ok := b.(*sqlBuilder); ok {
		sb.Reset(nil)
		builderPool.Put(sb)
	}
}

// Reset clears all builder state and prepares it for a new query with the given dialect.
func (b *sqlBuilder) Reset(d dialect.Dialect) {
	b.dialect = d
	b.table = ""
	b.alias = ""
	b.selectCols = b.selectCols[:0]
	b.whereExpr = ""
	b.whereArgs = b.whereArgs[:0]
	b.joins = b.joins[:0]
	b.joinArgs = b.joinArgs[:0]
	b.orderBy = b.orderBy[:0]
	b.sb.Reset()
}

func (b *sqlBuilder) SetTable(name string) Builder {
	b.table = name
	return b
}

func (b *sqlBuilder) Alias(alias string) Builder {
	b.alias = strings.TrimSpace(alias)
	return b
}

func (b *sqlBuilder) Select(columns ...string) Builder {
	b.selectCols = append(b.selectCols, columns...)
	return b
}

func (b *sqlBuilder) Where(cond string, args ...any) Builder {
	if cond == "" {
		return b
	}
	if b.whereExpr == "" {
		b.whereExpr = "(" + cond + ")"
	} else {
		b.whereExpr = b.whereExpr + " AND (" + cond + ")"
	}
	b.whereArgs = append(b.whereArgs, args...)
	return b
}

// Joins adds a raw JOIN clause to the query.
func (b *sqlBuilder) Joins(query string, args ...any) Builder {
	if !isValidJoinClause(query) {
		panic("invalid join clause: " + query)
	}
	b.joins = append(b.joins, query)
	b.joinArgs = append(b.joinArgs, args...)
	return b
}

func isValidJoinClause(query string) bool {
	upper := strings.ToUpper(query)
	for _, s := range []string{";", "--", "/*", "*/"} {
		if strings.Contains(upper, s) {
			return false
		}
	}
	return strings.Contains(upper, "JOIN")
}

func (b *sqlBuilder) OrderBy(columns ...string) Builder {
	b.orderBy = append(b.orderBy, columns...)
	return b
}

func (b *sqlBuilder) replacePlaceholders(sql string) string {
	if !strings.Contains(sql, "?") {
		return sql
	}

	// sql came from b.sb, so the buffer can be reused.
	b.sb.Reset()

	index := 1
	for {
		idx := strings.Index(sql, "?")
		if idx == -1 {
			b.sb.WriteString(sql)
			break
		}

		b.sb.WriteString(sql[:idx])
		b.sb.WriteString(b.dialect.Placeholder(index))
		sql = sql[idx+1:]
		index++
	}
	return b.sb.String()
}

func (b *sqlBuilder) Build() (string, []any) {
	b.sb.Reset()
	args := make([]any, 0, len(b.joinArgs)+len(b.whereArgs))

	b.sb.WriteString("SELECT ")
	if len(b.selectCols) > 0 {
		b.sb.WriteString(strings.Join(b.selectCols, ", "))
	} else {
		b.sb.WriteString("*")
	}

	b.sb.WriteString(" FROM ")
	b.sb.WriteString(b.dialect.Quote(b.table))
	if b.alias != "" {
		b.sb.WriteString(" ")
		b.sb.WriteString(b.alias)
	}

	if len(b.joins) > 0 {
		b.sb.WriteString(" ")
		b.sb.WriteString(strings.Join(b.joins, " "))
		args = append(args, b.joinArgs...)
	}

	if b.whereExpr != "" {
		b.sb.WriteString(" WHERE ")
		b.sb.WriteString(b.whereExpr)
		args = append(args, b.whereArgs...)
	}

	if len(b.orderBy) > 0 {
		b.sb.WriteString(" ORDER BY ")
		b.sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	return b.replacePlaceholders(b.sb.String()), args
}
