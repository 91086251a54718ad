package collection

import (
	"fmt"
	"reflect"

	"github.com/shrek82/jormx/model"
)

// SliceField adapts a []E struct field to Hydratable. Keys live in the
// adapter; the field itself only sees the elements in order.
type SliceField struct {
	field   reflect.Value
	keys    []any
	index   map[string]int
	nextKey int
	cursor  int
}

// NewSliceField resets field to an empty slice and wraps it.
func NewSliceField(field reflect.Value) (*SliceField, error) {
	if field.Kind() != reflect.Slice || !field.CanSet() {
		return nil, fmt.Errorf("%w: %s is not a settable slice", model.ErrMappingInconsistency, field.Type())
	}
	field.Set(reflect.MakeSlice(field.Type(), 0, 0))
	return &SliceField{field: field, index: make(map[string]int)}, nil
}

// WrapSliceField wraps field keeping its elements, keyed by position.
func WrapSliceField(field reflect.Value) (*SliceField, error) {
	if field.Kind() != reflect.Slice || !field.CanSet() {
		return nil, fmt.Errorf("%w: %s is not a settable slice", model.ErrMappingInconsistency, field.Type())
	}
	s := &SliceField{field: field, index: make(map[string]int)}
	for i := 0; i < field.Len(); i++ {
		s.keys = append(s.keys, i)
		s.index[keyOf(i)] = i
	}
	s.nextKey = field.Len()
	return s, nil
}

func (s *SliceField) ElemType() reflect.Type {
	return s.field.Type().Elem()
}

func (s *SliceField) HydrateAdd(v any) error {
	rv, err := s.value(v)
	if err != nil {
		return err
	}
	key := s.nextKey
	s.nextKey++
	s.push(key, rv)
	return nil
}

func (s *SliceField) HydrateSet(key, v any) error {
	rv, err := s.value(v)
	if err != nil {
		return err
	}
	if pos, ok := s.index[keyOf(key)]; ok {
		s.field.Index(pos).Set(rv)
		s.cursor = pos
		return nil
	}
	if n, ok := key.(int); ok && n >= s.nextKey {
		s.nextKey = n + 1
	}
	s.push(key, rv)
	return nil
}

func (s *SliceField) Last() any {
	n := s.field.Len()
	if n == 0 {
		return nil
	}
	s.cursor = n - 1
	return s.field.Index(s.cursor).Interface()
}

func (s *SliceField) Key() any {
	if s.cursor >= len(s.keys) {
		return nil
	}
	return s.keys[s.cursor]
}

func (s *SliceField) Has(key any) bool {
	_, ok := s.index[keyOf(key)]
	return ok
}

func (s *SliceField) Element(key any) (any, bool) {
	pos, ok := s.index[keyOf(key)]
	if !ok {
		return nil, false
	}
	return s.field.Index(pos).Interface(), true
}

func (s *SliceField) IsInitialized() bool { return true }
func (s *SliceField) SetInitialized(bool) {}
func (s *SliceField) TakeSnapshot()       {}

func (s *SliceField) Clear() {
	s.field.Set(reflect.MakeSlice(s.field.Type(), 0, 0))
	s.keys = nil
	s.index = make(map[string]int)
	s.nextKey = 0
	s.cursor = 0
}

func (s *SliceField) push(key any, rv reflect.Value) {
	s.field.Set(reflect.Append(s.field, rv))
	s.keys = append(s.keys, key)
	s.cursor = s.field.Len() - 1
	s.index[keyOf(key)] = s.cursor
}

func (s *SliceField) value(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !rv.Type().AssignableTo(s.ElemType()) {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a %s", model.ErrMappingInconsistency, v, s.ElemType())
	}
	return rv, nil
}
