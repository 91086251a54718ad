package proxy

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shrek82/jormx/model"
)

type FieldRef struct {
	Name        string
	Type        TypeRef
	Association bool
}

// Method is a method of the entity the proxy delegates to. FastField names
// the identifier field a fast-path getter returns without loading.
type Method struct {
	Name      string
	Params    []TypeRef
	Results   []TypeRef
	Variadic  bool
	FastField string
}

// Descriptor is everything the generator needs to know about one entity
// type.
type Descriptor struct {
	Entity   string // qualified type name, the registry key
	PkgPath  string
	TypeName string

	Identifiers []FieldRef // read without loading
	Lazy        []FieldRef // persistent fields and associations
	Transient   []FieldRef
	Methods     []Method

	HasPostLoad         bool
	HasBeforeSerialize  bool
	HasAfterDeserialize bool

	// Warnings lists members left out of the generated surface.
	Warnings []string
}

// ProxyName is the name of the generated proxy type.
func (d *Descriptor) ProxyName() string {
	return d.TypeName + "Proxy"
}

// Shape is the raw member list of an entity type as read from reflect or
// from source, before reserved names and getters are resolved.
type Shape struct {
	Entity   string
	PkgPath  string
	TypeName string
	Fields   []ShapeField
	Methods  []ShapeMethod

	HasPostLoad         bool
	HasBeforeSerialize  bool
	HasAfterDeserialize bool

	// Verified holds the getters whose body was checked to return their
	// field. Nil when bodies are not available.
	Verified map[string]bool
}

type ShapeField struct {
	FieldRef
	Identifier bool
	Transient  bool
	Primitive  bool
	Getter     string
	Err        error // set when the type cannot be spelled
}

type ShapeMethod struct {
	Method
	Err error
}

// reserved are the method names a generated proxy defines itself.
var reserved = map[string]bool{
	"Bind": true, "Identifier": true, "IsInitialized": true, "MarkInitialized": true,
	"Err": true, "EnsureLoaded": true, "MustLoad": true, "CloneTo": true,
	"Target": true, "State": true, "Entity": true, "Clone": true, "Lazy": true,
	"MarshalJSON": true, "UnmarshalJSON": true,
}

var descriptors = xsync.NewMapOf[string, *Descriptor]()

// Describe returns the descriptor of the entity type of m.
func Describe(m *model.Model) *Descriptor {
	if d, ok := descriptors.Load(m.Name); ok {
		return d
	}
	d, _ := descriptors.LoadOrStore(m.Name, Build(shapeOf(m)))
	return d
}

func shapeOf(m *model.Model) Shape {
	s := Shape{
		Entity:              m.Name,
		PkgPath:             m.Type.PkgPath(),
		TypeName:            m.Type.Name(),
		HasPostLoad:         m.HasPostLoad,
		HasBeforeSerialize:  m.HasBeforeSerialize,
		HasAfterDeserialize: m.HasAfterDeserialize,
	}
	field := func(name string, typ reflect.Type) ShapeField {
		ref, err := TypeOf(typ)
		return ShapeField{FieldRef: FieldRef{Name: name, Type: ref}, Err: err}
	}
	for _, f := range m.Fields {
		sf := field(f.Name, f.Type)
		sf.Identifier = f.IsPK
		sf.Primitive = f.IsPrimitive()
		sf.Getter = f.Getter
		s.Fields = append(s.Fields, sf)
	}
	for _, f := range m.Transient {
		sf := field(f.Name, f.Type)
		sf.Transient = true
		s.Fields = append(s.Fields, sf)
	}
	for _, rel := range m.Relations {
		sf := field(rel.Name, rel.FieldType)
		sf.Association = true
		s.Fields = append(s.Fields, sf)
	}

	ptr := reflect.PointerTo(m.Type)
	for i := 0; i < ptr.NumMethod(); i++ {
		mt := ptr.Method(i)
		fn, err := TypeOf(mt.Type)
		if err != nil {
			s.Methods = append(s.Methods, ShapeMethod{Method: Method{Name: mt.Name}, Err: err})
			continue
		}
		var params []TypeRef
		if len(fn.Params) > 1 {
			params = fn.Params[1:] // drop the receiver
		}
		s.Methods = append(s.Methods, ShapeMethod{Method: Method{
			Name:     mt.Name,
			Params:   params,
			Results:  fn.Results,
			Variadic: fn.Variadic,
		}})
	}
	return s
}

// Build resolves a Shape into a Descriptor. Members whose names clash with
// the proxy's own methods, and members whose types cannot be spelled, are
// left out with a warning.
func Build(s Shape) *Descriptor {
	d := &Descriptor{
		Entity:              s.Entity,
		PkgPath:             s.PkgPath,
		TypeName:            s.TypeName,
		HasPostLoad:         s.HasPostLoad,
		HasBeforeSerialize:  s.HasBeforeSerialize,
		HasAfterDeserialize: s.HasAfterDeserialize,
	}
	warn := func(format string, args ...any) {
		d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
	}

	taken := make(map[string]bool)
	getters := make(map[string]ShapeField)
	for _, f := range s.Fields {
		if f.Err != nil {
			warn("field %s skipped: %v", f.Name, f.Err)
			continue
		}
		if reserved[f.Name] {
			warn("field %s skipped: name is reserved", f.Name)
			continue
		}
		switch {
		case f.Identifier:
			d.Identifiers = append(d.Identifiers, f.FieldRef)
			if f.Getter != "" {
				getters[f.Getter] = f
			}
		case f.Transient:
			d.Transient = append(d.Transient, f.FieldRef)
		default:
			d.Lazy = append(d.Lazy, f.FieldRef)
		}
		taken[f.Name] = true
	}
	for _, f := range slices.Concat(d.Lazy, d.Transient) {
		setter := "Set" + f.Name
		if taken[setter] {
			warn("setter %s skipped: name is taken", setter)
			continue
		}
		taken[setter] = true
	}

	for _, sm := range s.Methods {
		m := sm.Method
		if slices.Contains(model.HookNames, m.Name) {
			continue
		}
		if sm.Err != nil {
			warn("method %s skipped: %v", m.Name, sm.Err)
			continue
		}
		if reserved[m.Name] || taken[m.Name] {
			warn("method %s skipped: name is reserved", m.Name)
			continue
		}
		m.FastField = ""
		if f, ok := getters[m.Name]; ok {
			switch {
			case !f.Primitive:
				warn("getter %s of %s: field is not an integer or string", m.Name, f.Name)
			case len(m.Params) != 0 || len(m.Results) != 1 || !m.Results[0].Equal(f.Type):
				warn("getter %s of %s: must take nothing and return %s", m.Name, f.Name, f.Type)
			case s.Verified != nil && !s.Verified[m.Name]:
				warn("getter %s of %s: body does not return the field", m.Name, f.Name)
			default:
				m.FastField = f.Name
			}
			delete(getters, m.Name)
		}
		d.Methods = append(d.Methods, m)
	}
	for name, f := range getters {
		warn("getter %s of %s: no such method", name, f.Name)
	}
	slices.Sort(d.Warnings)
	return d
}
