package dialect

import (
	"fmt"
	"math"
)

// MySQL dialect implementation
type mysql struct{}

func (d *mysql) Name() string { return "mysql" }

func (d *mysql) Quote(name string) string {
	return fmt.Sprintf("`%s`", name)
}

func (d *mysql) Placeholder(index int) string {
	return "?"
}

func (d *mysql) LimitOffsetSQL(argIndex, limit, offset int) (string, []any) {
	if limit < 0 {
		// MySQL has no "no limit" value
		return " LIMIT ?, ?", []any{offset, uint64(math.MaxInt64)}
	}
	return " LIMIT ? OFFSET ?", []any{limit, offset}
}
