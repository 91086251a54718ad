// Package proxy implements lazy references to entities. A proxy holds the
// identifier of an entity and an empty target instance; the first access to
// anything but the identifier loads the target through a Persister.
//
// Typed proxies are generated ahead of time (see Generator and jorm-gen) and
// register themselves from init. Entity types without generated code get a
// Ghost, which offers the same loading contract through reflection.
package proxy

import (
	"context"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shrek82/jormx/model"
)

// Proxy is the capability shared by generated proxies and Ghost.
type Proxy interface {
	IsInitialized() bool
	EnsureLoaded() error
	MarkInitialized()
	Identifier() model.Identifier
	// Target returns the entity instance the proxy fills. It never loads.
	Target() any
	State() *Lazy
}

// Persister loads entity state. target is the instance to fill, or nil when
// a fresh instance is wanted. A nil entity with a nil error means the
// identifier does not exist.
type Persister interface {
	Load(ctx context.Context, id model.Identifier, target any) (any, error)
}

// Config locates generated proxy sources.
type Config struct {
	Dir          string `mapstructure:"dir"`
	Package      string `mapstructure:"package"`
	ImportPath   string `mapstructure:"import_path"`
	AutoGenerate bool   `mapstructure:"auto_generate"`
}

type registration struct {
	typ  reflect.Type
	ctor func(target any) Proxy
}

var registry = xsync.NewMapOf[string, registration]()

// Register makes ctor the proxy constructor for the entity type of sample,
// a typed nil pointer. Generated code calls it from init.
func Register(sample any, ctor func(target any) Proxy) {
	typ := reflect.TypeOf(sample)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	registry.Store(model.TypeName(typ), registration{typ: typ, ctor: ctor})
}

// Constructor returns the registered constructor for an entity type name.
func Constructor(name string) (func(target any) Proxy, bool) {
	r, ok := registry.Load(name)
	if !ok {
		return nil, false
	}
	return r.ctor, true
}

// New wraps target in its registered proxy type, or in a Ghost.
func New(m *model.Model, target any) Proxy {
	if ctor, ok := Constructor(m.Name); ok {
		return ctor(target)
	}
	return NewGhost(m, target)
}

// resolve finds the model of an entity type name, parsing registered types
// on demand.
func resolve(name string) (*model.Model, bool) {
	if m, ok := model.Lookup(name); ok {
		return m, true
	}
	r, ok := registry.Load(name)
	if !ok {
		return nil, false
	}
	m, err := model.ModelOf(r.typ)
	if err != nil {
		return nil, false
	}
	return m, true
}
