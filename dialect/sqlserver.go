package dialect

import (
	"fmt"
)

// SQL Server dialect implementation
type sqlserver struct{}

func (d *sqlserver) Name() string { return "sqlserver" }

func (d *sqlserver) Quote(name string) string {
	return fmt.Sprintf("[%s]", name)
}

func (d *sqlserver) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index)
}

// OFFSET/FETCH requires an ORDER BY in the statement.
func (d *sqlserver) LimitOffsetSQL(argIndex, limit, offset int) (string, []any) {
	if limit < 0 {
		return fmt.Sprintf(" OFFSET @p%d ROWS", argIndex), []any{offset}
	}
	return fmt.Sprintf(" OFFSET @p%d ROWS FETCH NEXT @p%d ROWS ONLY", argIndex, argIndex+1), []any{offset, limit}
}
