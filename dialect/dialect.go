package dialect

import (
	"strings"
)

// Dialect represents the database-specific pieces of the SQL the persisters emit.
type Dialect interface {
	// Name returns the driver name the dialect is registered under
	Name() string
	// Quote wraps a name (table or column) in database-specific quotes
	Quote(name string) string
	// Placeholder returns the bind parameter marker for the 1-based index
	Placeholder(index int) string
	// LimitOffsetSQL returns the paging clause starting at bind index argIndex
	// and its arguments in bind order
	LimitOffsetSQL(argIndex, limit, offset int) (string, []any)
}

var dialects = make(map[string]Dialect)

func init() {
	Register("sqlite3", &sqlite3{})
	Register("mysql", &mysql{})
	Register("postgres", &postgres{})
	Register("sqlserver", &sqlserver{})
	Register("mssql", &sqlserver{})
}

// Register registers a new dialect for a given driver name
func Register(name string, d Dialect) {
	dialects[name] = d
}

// Get retrieves a registered dialect by driver name
func Get(name string) (Dialect, bool) {
	d, ok := dialects[name]
	return d, ok
}

// QuoteAll quotes every column and joins them with ", ".
func QuoteAll(d Dialect, prefix string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if prefix != "" {
			quoted[i] = prefix + "." + d.Quote(c)
		} else {
			quoted[i] = d.Quote(c)
		}
	}
	return strings.Join(quoted, ", ")
}
