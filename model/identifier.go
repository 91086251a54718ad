package model

import (
	"fmt"
	"strings"
)

// Identifier is the ordered tuple of identifier values of one entity.
type Identifier []any

// ID builds an Identifier from values.
func ID(values ...any) Identifier {
	return Identifier(values)
}

// Key returns a canonical string for the tuple. Values of different Go types
// that print alike share a key, so int64(1) from one driver and "1" from
// another resolve to the same entity.
func (id Identifier) Key() string {
	if len(id) == 1 {
		return keyPart(id[0])
	}
	var sb strings.Builder
	for i, v := range id {
		if i > 0 {
			sb.WriteByte('\x1f')
		}
		sb.WriteString(keyPart(v))
	}
	return sb.String()
}

// IsNull reports whether every value of the tuple is NULL.
func (id Identifier) IsNull() bool {
	for _, v := range id {
		if !isNull(v) {
			return false
		}
	}
	return true
}

// IsZero reports whether the tuple is NULL or holds only zero values, the
// state of an entity that was never persisted.
func (id Identifier) IsZero() bool {
	for _, v := range id {
		if !isNull(v) && keyPart(v) != "0" && keyPart(v) != "" {
			return false
		}
	}
	return true
}

func (id Identifier) String() string {
	return "(" + strings.ReplaceAll(id.Key(), "\x1f", ", ") + ")"
}

func keyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00"
	case []byte:
		return string(x)
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if n, ok := v.(interface{ IsNull() bool }); ok {
		return n.IsNull()
	}
	return false
}
