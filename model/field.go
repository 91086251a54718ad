package model

import (
	"reflect"
)

// Field represents a database column mapped from a struct field
type Field struct {
	Name      string       // Struct field name
	Column    string       // DB column name
	Type      reflect.Type // Field type
	Index     []int        // Index path, embedded structs included
	IsPK      bool         // Is part of the identifier
	Transient bool         // Not persisted, tagged `jorm:"-"`
	Getter    string       // Accessor declared as a cheap identifier getter
	Tag       string       // Raw tag string
}

// IsPrimitive reports whether the field holds an integer or string, the
// kinds an identifier getter may return without loading.
func (f *Field) IsPrimitive() bool {
	switch f.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String:
		return true
	}
	return false
}
