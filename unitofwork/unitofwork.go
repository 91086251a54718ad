// Package unitofwork keeps the identity map: one canonical instance per
// (entity type, identifier) for the lifetime of a session, shared by every
// hydration run and every lazy reference.
package unitofwork

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/shrek82/jormx/logger"
	"github.com/shrek82/jormx/model"
)

// LazyRef is the part of a lazy proxy the identity map drives.
type LazyRef interface {
	IsInitialized() bool
	MarkInitialized()
	Target() any
}

// ReferenceFactory creates uninitialized references for entities that are
// pointed at but not loaded.
type ReferenceFactory interface {
	NewReference(ctx context.Context, m *model.Model, id model.Identifier) (LazyRef, error)
}

// CollectionBinder allocates a lazy collection for a to-many field that was
// not fetched. It returns nil when the field shape cannot be lazy.
type CollectionBinder interface {
	BindCollection(ctx context.Context, owner any, m *model.Model, rel *model.Relation) (any, error)
}

// EntityData is the state of one entity extracted from a result row.
type EntityData struct {
	Fields  map[string]any // field name -> raw column value
	Foreign map[string]any // to-one relation name -> raw foreign key value
}

// Hints adjust how CreateEntity treats an already managed instance.
type Hints struct {
	Context context.Context
	// Refresh overwrites the state of managed instances.
	Refresh bool
	// Target is filled in place and becomes the managed instance for its identifier.
	Target any
	// Detached builds a fresh instance that is neither looked up nor registered.
	Detached bool
	// Fetched names the relations populated by joins in the current query.
	Fetched map[string]bool
}

type UnitOfWork struct {
	mu          sync.Mutex
	identityMap map[string]map[string]any
	refs        map[any]LazyRef
	references  ReferenceFactory
	collections CollectionBinder
	log         logger.Logger
}

type Option func(*UnitOfWork)

func WithLogger(l logger.Logger) Option {
	return func(u *UnitOfWork) { u.log = l }
}

func New(opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		identityMap: make(map[string]map[string]any),
		refs:        make(map[any]LazyRef),
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UnitOfWork) SetReferenceFactory(f ReferenceFactory) {
	u.references = f
}

func (u *UnitOfWork) SetCollectionBinder(b CollectionBinder) {
	u.collections = b
}

// Lookup returns the managed instance for id.
func (u *UnitOfWork) Lookup(m *model.Model, id model.Identifier) (any, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.identityMap[m.Name][id.Key()]
	return e, ok
}

// Register makes entity the managed instance for id.
func (u *UnitOfWork) Register(m *model.Model, id model.Identifier, entity any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	byID, ok := u.identityMap[m.Name]
	if !ok {
		byID = make(map[string]any)
		u.identityMap[m.Name] = byID
	}
	byID[id.Key()] = entity
}

// RegisterReference manages ref.Target() under id and remembers the proxy
// that controls its loading.
func (u *UnitOfWork) RegisterReference(m *model.Model, id model.Identifier, ref LazyRef) {
	u.Register(m, id, ref.Target())
	u.mu.Lock()
	u.refs[ref.Target()] = ref
	u.mu.Unlock()
}

// ReferenceOf returns the proxy controlling entity, if any.
func (u *UnitOfWork) ReferenceOf(entity any) (LazyRef, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ref, ok := u.refs[entity]
	return ref, ok
}

// IsUninitializedReference reports whether entity is the target of a proxy
// that has not loaded yet.
func (u *UnitOfWork) IsUninitializedReference(entity any) bool {
	ref, ok := u.ReferenceOf(entity)
	return ok && !ref.IsInitialized()
}

// GetOrCreate returns the managed instance for id, allocating and
// registering an empty one carrying only the identifier when none exists.
func (u *UnitOfWork) GetOrCreate(m *model.Model, id model.Identifier) (any, bool, error) {
	if e, ok := u.Lookup(m, id); ok {
		return e, false, nil
	}
	e := m.New()
	if err := m.SetIdentifier(e, id); err != nil {
		return nil, false, err
	}
	u.Register(m, id, e)
	return e, true, nil
}

// Detach forgets entity.
func (u *UnitOfWork) Detach(m *model.Model, entity any) {
	id := m.Identifier(entity)
	u.mu.Lock()
	defer u.mu.Unlock()
	if byID, ok := u.identityMap[m.Name]; ok && byID[id.Key()] == entity {
		delete(byID, id.Key())
	}
	delete(u.refs, entity)
}

// Clear forgets every managed instance.
func (u *UnitOfWork) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.identityMap = make(map[string]map[string]any)
	u.refs = make(map[any]LazyRef)
}

// Len returns the number of managed instances.
func (u *UnitOfWork) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, byID := range u.identityMap {
		n += len(byID)
	}
	return n
}

// CreateEntity returns the canonical instance for the row state in data.
// A managed instance keeps its state unless it is an uninitialized proxy
// target or a refresh is requested; in those cases data overwrites it.
func (u *UnitOfWork) CreateEntity(m *model.Model, data EntityData, hints *Hints) (any, error) {
	if hints == nil {
		hints = &Hints{}
	}
	id := make(model.Identifier, len(m.Identifiers))
	for i, f := range m.Identifiers {
		id[i] = data.Fields[f.Name]
	}

	var (
		entity   any
		override bool
		loaded   LazyRef
	)
	switch {
	case hints.Detached:
		entity, override = m.New(), true
	case hints.Target != nil:
		entity, override = hints.Target, true
		u.Register(m, id, entity)
		if ref, ok := u.ReferenceOf(entity); ok && !ref.IsInitialized() {
			loaded = ref
		}
	default:
		existing, created, err := u.GetOrCreate(m, id)
		if err != nil {
			return nil, err
		}
		entity = existing
		switch ref, isRef := u.ReferenceOf(existing); {
		case created:
			override = true
		case isRef && !ref.IsInitialized():
			override, loaded = true, ref
		default:
			override = hints.Refresh
		}
	}

	if !override {
		return entity, nil
	}

	v := m.Value(entity)
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: %T is not a *%s", model.ErrInvalidModel, entity, m.Type.Name())
	}
	for name, raw := range data.Fields {
		f, ok := m.NameMap[name]
		if !ok {
			continue
		}
		if err := model.Assign(v.FieldByIndex(f.Index), raw); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, name, err)
		}
	}
	if err := u.bindAssociations(m, entity, v, data, hints); err != nil {
		return nil, err
	}

	if loaded != nil {
		loaded.MarkInitialized()
	}
	if m.HasPostLoad {
		if err := model.RunPostLoad(entity); err != nil {
			return nil, err
		}
	}
	u.log.Debug("hydrated %s%s", m.Name, id)
	return entity, nil
}

// bindAssociations points unfetched to-one relations at references built
// from their foreign keys and gives unfetched collections a lazy loader.
func (u *UnitOfWork) bindAssociations(m *model.Model, entity any, v reflect.Value, data EntityData, hints *Hints) error {
	ctx := hints.Context
	if ctx == nil {
		ctx = context.Background()
	}
	for _, rel := range m.Relations {
		if hints.Fetched[rel.Name] {
			continue
		}
		field := v.FieldByIndex(rel.Index)

		if !rel.IsCollection() {
			fk, ok := data.Foreign[rel.Name]
			if !ok || rel.Kind != model.KindPointer {
				continue
			}
			if fk == nil {
				field.Set(reflect.Zero(field.Type()))
				continue
			}
			target, err := rel.TargetModel()
			if err != nil {
				return err
			}
			ref, err := u.reference(ctx, target, model.ID(fk))
			if err != nil {
				return err
			}
			if ref != nil {
				rv := reflect.ValueOf(ref)
				if !rv.Type().AssignableTo(field.Type()) {
					return &model.MappingError{Entity: m.Name, Relation: rel.Name, Reason: fmt.Sprintf("cannot assign %s", rv.Type())}
				}
				field.Set(rv)
			}
			continue
		}

		if !field.IsNil() && !hints.Refresh {
			continue
		}
		if err := u.BindCollection(ctx, entity, m, rel); err != nil {
			return err
		}
	}
	return nil
}

// BindCollection replaces the to-many field rel of owner with a lazy
// collection from the CollectionBinder. Without a binder, or for fields that
// are not collections, it leaves the field alone.
func (u *UnitOfWork) BindCollection(ctx context.Context, owner any, m *model.Model, rel *model.Relation) error {
	if u.collections == nil || rel.Kind != model.KindCollection {
		return nil
	}
	coll, err := u.collections.BindCollection(ctx, owner, m, rel)
	if err != nil {
		return err
	}
	if coll != nil {
		m.Value(owner).FieldByIndex(rel.Index).Set(reflect.ValueOf(coll))
	}
	return nil
}

// reference returns the managed instance for id or a new uninitialized
// reference to it. Without a ReferenceFactory it returns nil.
func (u *UnitOfWork) reference(ctx context.Context, m *model.Model, id model.Identifier) (any, error) {
	if e, ok := u.Lookup(m, id); ok {
		return e, nil
	}
	if u.references == nil {
		return nil, nil
	}
	ref, err := u.references.NewReference(ctx, m, id)
	if err != nil {
		return nil, err
	}
	return ref.Target(), nil
}
