package proxy

import (
	"fmt"
	"go/token"
	"reflect"
	"strings"

	"github.com/shrek82/jormx/model"
)

type TypeKind int

const (
	TypeNamed TypeKind = iota
	TypePointer
	TypeSlice
	TypeArray
	TypeMap
	TypeAny
	TypeFunc
)

// TypeRef describes a Go type well enough to spell it in generated code.
// Named types carry their import path; predeclared types have none.
type TypeRef struct {
	Kind     TypeKind
	Path     string
	Name     string
	Args     []TypeRef
	Elem     *TypeRef
	Key      *TypeRef
	Len      int
	Params   []TypeRef
	Results  []TypeRef
	Variadic bool
}

func Named(path, name string, args ...TypeRef) TypeRef {
	return TypeRef{Kind: TypeNamed, Path: path, Name: name, Args: args}
}

func PointerTo(elem TypeRef) TypeRef {
	return TypeRef{Kind: TypePointer, Elem: &elem}
}

func SliceOf(elem TypeRef) TypeRef {
	return TypeRef{Kind: TypeSlice, Elem: &elem}
}

func (t TypeRef) IsError() bool {
	return t.Kind == TypeNamed && t.Path == "" && t.Name == "error"
}

func (t TypeRef) Equal(o TypeRef) bool {
	return t.String() == o.String()
}

func (t TypeRef) String() string {
	switch t.Kind {
	case TypeNamed:
		var sb strings.Builder
		if t.Path != "" {
			sb.WriteString(t.Path)
			sb.WriteByte('.')
		}
		sb.WriteString(t.Name)
		if len(t.Args) > 0 {
			sb.WriteByte('[')
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(a.String())
			}
			sb.WriteByte(']')
		}
		return sb.String()
	case TypePointer:
		return "*" + t.Elem.String()
	case TypeSlice:
		return "[]" + t.Elem.String()
	case TypeArray:
		return fmt.Sprintf("[%d]%s", t.Len, t.Elem)
	case TypeMap:
		return "map[" + t.Key.String() + "]" + t.Elem.String()
	case TypeAny:
		return "any"
	case TypeFunc:
		return "func(" + list(t.Params, t.Variadic) + ") (" + list(t.Results, false) + ")"
	}
	return "?"
}

func list(refs []TypeRef, variadic bool) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		if variadic && i == len(refs)-1 {
			parts[i] = "..." + r.Elem.String()
			continue
		}
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

var collectableType = reflect.TypeOf((*model.Collectable)(nil)).Elem()

// TypeOf converts a reflect type. Generic types are supported when they are
// collections of one element type; reflect does not expose other type
// arguments.
func TypeOf(t reflect.Type) (TypeRef, error) {
	if name := t.Name(); name != "" {
		if t.PkgPath() != "" && !token.IsExported(name) {
			return TypeRef{}, fmt.Errorf("type %s is not exported", t)
		}
		if i := strings.IndexByte(name, '['); i >= 0 {
			ptr := reflect.PointerTo(t)
			if !ptr.Implements(collectableType) {
				return TypeRef{}, fmt.Errorf("generic type %s is not supported", t)
			}
			elem, err := TypeOf(reflect.Zero(ptr).Interface().(model.Collectable).ElemType())
			if err != nil {
				return TypeRef{}, err
			}
			return Named(t.PkgPath(), name[:i], elem), nil
		}
		return Named(t.PkgPath(), name), nil
	}

	switch t.Kind() {
	case reflect.Ptr, reflect.Slice:
		elem, err := TypeOf(t.Elem())
		if err != nil {
			return TypeRef{}, err
		}
		if t.Kind() == reflect.Ptr {
			return PointerTo(elem), nil
		}
		return SliceOf(elem), nil
	case reflect.Array:
		elem, err := TypeOf(t.Elem())
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: TypeArray, Len: t.Len(), Elem: &elem}, nil
	case reflect.Map:
		key, err := TypeOf(t.Key())
		if err != nil {
			return TypeRef{}, err
		}
		elem, err := TypeOf(t.Elem())
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: TypeMap, Key: &key, Elem: &elem}, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return TypeRef{Kind: TypeAny}, nil
		}
	case reflect.Func:
		fn := TypeRef{Kind: TypeFunc, Variadic: t.IsVariadic()}
		for i := 0; i < t.NumIn(); i++ {
			p, err := TypeOf(t.In(i))
			if err != nil {
				return TypeRef{}, err
			}
			fn.Params = append(fn.Params, p)
		}
		for i := 0; i < t.NumOut(); i++ {
			r, err := TypeOf(t.Out(i))
			if err != nil {
				return TypeRef{}, err
			}
			fn.Results = append(fn.Results, r)
		}
		return fn, nil
	}
	return TypeRef{}, fmt.Errorf("type %s is not supported", t)
}
