package proxy

import (
	"fmt"
	"reflect"

	"github.com/shrek82/jormx/model"
)

// Ghost is the reflective proxy used for entity types without generated
// code. Identifier and transient fields are read without loading.
type Ghost struct {
	Lazy
	model  *model.Model
	target any
}

func NewGhost(m *model.Model, target any) *Ghost {
	return &Ghost{model: m, target: target}
}

func (g *Ghost) Target() any { return g.target }

func (g *Ghost) State() *Lazy { return &g.Lazy }

func (g *Ghost) Model() *model.Model { return g.model }

// prepare gives a zero Ghost a target before it is woken.
func (g *Ghost) prepare(m *model.Model) {
	if g.target == nil {
		g.model = m
		g.target = m.New()
	}
}

// Get loads the entity and returns it.
func (g *Ghost) Get() (any, error) {
	if err := g.EnsureLoaded(); err != nil {
		return nil, err
	}
	return g.target, nil
}

func (g *Ghost) free(name string) bool {
	if g.model.IsIdentifier(name) {
		return true
	}
	f, ok := g.model.Field(name)
	return ok && f.Transient
}

// Field returns a field or association value, loading first unless name
// is an identifier or transient field.
func (g *Ghost) Field(name string) (any, error) {
	if !g.free(name) {
		if err := g.EnsureLoaded(); err != nil {
			return nil, err
		}
	}
	v, ok := g.model.FieldValue(g.target, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %s", model.ErrInvalidModel, g.model.Name, name)
	}
	return v, nil
}

func (g *Ghost) SetField(name string, v any) error {
	if !g.free(name) {
		if err := g.EnsureLoaded(); err != nil {
			return err
		}
	}
	if rel, ok := g.model.RelationMap[name]; ok {
		field := g.model.Value(g.target).FieldByIndex(rel.Index)
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		if !rv.Type().AssignableTo(field.Type()) {
			return fmt.Errorf("%w: cannot assign %T to %s.%s", model.ErrInvalidModel, v, g.model.Name, name)
		}
		field.Set(rv)
		return nil
	}
	return g.model.SetFieldValue(g.target, name, v)
}

// Call loads the entity and invokes one of its methods.
func (g *Ghost) Call(method string, args ...any) ([]any, error) {
	if err := g.EnsureLoaded(); err != nil {
		return nil, err
	}
	fn := reflect.ValueOf(g.target).MethodByName(method)
	if !fn.IsValid() {
		return nil, fmt.Errorf("%w: %s has no method %s", model.ErrInvalidModel, g.model.Name, method)
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	out := fn.Call(in)
	res := make([]any, len(out))
	for i, v := range out {
		res[i] = v.Interface()
	}
	return res, nil
}

// Clone copies the proxy. The clone of an uninitialized ghost is loaded
// separately and does not share state with the original.
func (g *Ghost) Clone() (*Ghost, error) {
	target := g.model.New()
	g.model.Value(target).Set(g.model.Value(g.target))
	c := &Ghost{model: g.model, target: target}
	if err := g.CloneTo(&c.Lazy, target); err != nil {
		return nil, err
	}
	return c, nil
}

func (g *Ghost) MarshalJSON() ([]byte, error) {
	return Sleep(g)
}

func (g *Ghost) UnmarshalJSON(data []byte) error {
	return WakeInto(g, data)
}
