package dialect

import (
	"fmt"

	"github.com/lib/pq"
)

// PostgreSQL dialect implementation
type postgres struct{}

func (d *postgres) Name() string { return "postgres" }

func (d *postgres) Quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// PostgreSQL uses $1, $2, $3... for placeholders
func (d *postgres) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *postgres) LimitOffsetSQL(argIndex, limit, offset int) (string, []any) {
	if limit < 0 {
		return fmt.Sprintf(" OFFSET $%d", argIndex), []any{offset}
	}
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1), []any{limit, offset}
}
