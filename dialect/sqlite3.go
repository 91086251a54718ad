package dialect

import (
	"fmt"
)

// SQLite dialect implementation
type sqlite3 struct{}

func (d *sqlite3) Name() string { return "sqlite3" }

func (d *sqlite3) Quote(name string) string {
	return fmt.Sprintf("`%s`", name)
}

func (d *sqlite3) Placeholder(index int) string {
	return "?"
}

func (d *sqlite3) LimitOffsetSQL(argIndex, limit, offset int) (string, []any) {
	if limit < 0 {
		limit = -1
	}
	return " LIMIT ? OFFSET ?", []any{limit, offset}
}
