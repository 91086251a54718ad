// Package hydrate folds flat result rows into object graphs. A
// ResultSetMapping says which columns belong to which alias and how aliases
// nest; a Hydrator walks the rows once, deduplicating entities per alias
// through an IdentityRegistry and canonical instances through the unit of
// work, and fills to-many fields as rows reveal their members.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"

	"github.com/shrek82/jormx/collection"
	"github.com/shrek82/jormx/logger"
	"github.com/shrek82/jormx/metrics"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/unitofwork"
)

type Option func(*Hydrator)

// WithRefresh overwrites the state of entities the unit of work already
// manages, and re-fills their fetched associations.
func WithRefresh() Option {
	return func(h *Hydrator) { h.refresh = true }
}

// WithTarget fills entity in place with the first root row instead of
// allocating a new instance.
func WithTarget(entity any) Option {
	return func(h *Hydrator) { h.target = entity }
}

// WithDetached builds fresh instances that the unit of work does not track.
func WithDetached() Option {
	return func(h *Hydrator) { h.detached = true }
}

// WithCollection also feeds every root entity into c.
func WithCollection(c collection.Hydratable) Option {
	return func(h *Hydrator) { h.into = c }
}

func WithLogger(l logger.Logger) Option {
	return func(h *Hydrator) { h.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hydrator) { h.metrics = m }
}

// Hydrator is a validated mapping plus the options of one kind of query.
// It may start any number of runs, one at a time per Run value.
type Hydrator struct {
	rsm      *ResultSetMapping
	uow      *unitofwork.UnitOfWork
	log      logger.Logger
	metrics  *metrics.Metrics
	refresh  bool
	target   any
	detached bool
	into     collection.Hydratable
}

// New validates rsm and returns a Hydrator resolving identities through uow.
// A nil uow gets a private one.
func New(rsm *ResultSetMapping, uow *unitofwork.UnitOfWork, opts ...Option) (*Hydrator, error) {
	if rsm == nil {
		return nil, fmt.Errorf("%w: nil result set mapping", model.ErrConfiguration)
	}
	if err := rsm.Validate(); err != nil {
		return nil, err
	}
	if uow == nil {
		uow = unitofwork.New()
	}
	h := &Hydrator{rsm: rsm, uow: uow, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HydrateAll folds every row of rows, in order. Any failure aborts the run
// and no partial result is returned.
func (h *Hydrator) HydrateAll(ctx context.Context, rows iter.Seq2[Row, error]) (*Result, error) {
	run := h.Begin(ctx)
	for row, err := range rows {
		if err != nil {
			run.abort(err)
			return nil, err
		}
		if err := run.ProcessRow(row); err != nil {
			return nil, err
		}
	}
	return run.Finish()
}

// Rows adapts an in-memory row list to a row source.
func Rows(rows []Row) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Begin starts a run with a fresh IdentityRegistry.
func (h *Hydrator) Begin(ctx context.Context) *Run {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Run{
		h:           h,
		ctx:         ctx,
		result:      newResult(),
		registry:    NewIdentityRegistry(),
		pointers:    make(map[string]any),
		fetched:     h.rsm.fetched(),
		roots:       len(h.rsm.Roots()),
		collections: make(map[collKey]collection.Hydratable),
		existing:    make(map[collKey]bool),
	}
}

type collKey struct {
	owner any
	field string
}

// chunk is the part of one row that belongs to one alias.
type chunk struct {
	model    *model.Model
	data     unitofwork.EntityData
	id       model.Identifier
	nonEmpty bool
}

// Run is one hydration pass over an ordered row sequence.
type Run struct {
	h           *Hydrator
	ctx         context.Context
	result      *Result
	registry    *IdentityRegistry
	pointers    map[string]any
	fetched     map[string]map[string]bool
	roots       int
	collections map[collKey]collection.Hydratable
	existing    map[collKey]bool
	fresh       []collection.Hydratable
	rows        int
	entities    int
	targetUsed  bool
	failed      error
}

// ProcessRow folds row into the result. After a failure every call returns
// the same error.
func (r *Run) ProcessRow(row Row) error {
	if r.failed != nil {
		return r.failed
	}
	if err := r.processRow(row); err != nil {
		r.abort(err)
		return err
	}
	r.rows++
	r.h.metrics.Row()
	return nil
}

// Finish snapshots the collections filled by the run and returns the result.
func (r *Run) Finish() (*Result, error) {
	if r.failed != nil {
		return nil, r.failed
	}
	for _, c := range r.fresh {
		c.TakeSnapshot()
	}
	r.h.log.Debug("hydrated %d rows into %d results, %d entities", r.rows, r.result.Len(), r.entities)
	return r.result, nil
}

func (r *Run) abort(err error) {
	if r.failed != nil {
		return
	}
	r.failed = err
	class := "other"
	switch {
	case errors.Is(err, model.ErrConfiguration):
		class = "configuration"
	case errors.Is(err, model.ErrMappingInconsistency):
		class = "mapping"
	}
	r.h.metrics.HydrationFailed(class)
	r.h.log.Warn("hydration aborted after %d rows: %v", r.rows, err)
}

func (r *Run) processRow(row Row) error {
	rsm := r.h.rsm
	chunks, err := r.gather(row)
	if err != nil {
		return err
	}
	clear(r.pointers)

	var (
		resultKey any
		haveKey   bool
	)
	for _, alias := range rsm.order {
		em := rsm.entities[alias]
		if em.parent == "" {
			key, err := r.hydrateRoot(em, chunks[alias], row)
			if err != nil {
				return err
			}
			resultKey, haveKey = key, true
			continue
		}
		if err := r.hydrateJoined(em, chunks, row); err != nil {
			return fmt.Errorf("%s.%s: %w", em.parent, em.relation, err)
		}
	}

	if len(rsm.scalars) == 0 && len(rsm.newObjects) == 0 {
		return nil
	}
	if !haveKey {
		switch {
		case rsm.indexByScalar != "":
			resultKey = indexValue(row[rsm.indexByScalar])
		case r.roots == 0:
			resultKey = r.result.Append(nil)
		default:
			resultKey = r.result.lastKey()
		}
	}

	if len(rsm.scalars) > 0 {
		m := r.mixedSlot(resultKey)
		for _, col := range rsm.scalarOrder {
			if v, ok := row[col]; ok {
				m[rsm.scalars[col]] = indexValue(v)
			}
		}
	}
	for _, no := range rsm.newObjects {
		args := make([]any, len(no.columns))
		for i, col := range no.columns {
			args[i] = indexValue(row[col])
		}
		obj, err := no.ctor(args...)
		if err != nil {
			return fmt.Errorf("new object %s: %w", no.name, err)
		}
		if len(rsm.newObjects) == 1 && len(rsm.scalars) == 0 && r.roots == 0 {
			r.result.Set(resultKey, obj)
			continue
		}
		r.mixedSlot(resultKey)[no.name] = obj
	}
	return nil
}

// gather splits row into one chunk per alias.
func (r *Run) gather(row Row) (map[string]*chunk, error) {
	rsm := r.h.rsm
	chunks := make(map[string]*chunk, len(rsm.order))
	for _, alias := range rsm.order {
		em := rsm.entities[alias]
		m := em.model
		if em.discriminator != "" {
			if dv := row[em.discriminator]; dv != nil {
				sub, ok := em.discriminated[fmt.Sprint(indexValue(dv))]
				if !ok {
					return nil, &model.MappingError{Entity: m.Name, Reason: fmt.Sprintf("unknown discriminator value %v for alias %q", indexValue(dv), alias)}
				}
				m = sub
			}
		}
		chunks[alias] = &chunk{
			model: m,
			data: unitofwork.EntityData{
				Fields:  make(map[string]any),
				Foreign: make(map[string]any),
			},
		}
	}
	for col, v := range row {
		if ref, ok := rsm.fieldColumns[col]; ok {
			chunks[ref.alias].data.Fields[ref.name] = v
		}
		if ref, ok := rsm.metaColumns[col]; ok {
			chunks[ref.alias].data.Foreign[ref.name] = v
		}
	}
	for _, c := range chunks {
		c.id = make(model.Identifier, len(c.model.Identifiers))
		for i, f := range c.model.Identifiers {
			c.id[i] = c.data.Fields[f.Name]
		}
		c.nonEmpty = !c.id.IsNull()
	}
	return chunks, nil
}

func (r *Run) hydrateRoot(em *entityMapping, c *chunk, row Row) (any, error) {
	rsm := r.h.rsm
	if !c.nonEmpty {
		if rsm.mixed {
			return r.result.Append(Mixed{em.key(): nil}), nil
		}
		return r.result.Append(nil), nil
	}

	if key, ok := r.registry.Lookup(em.alias, c.id); ok {
		v, _ := r.result.Get(key)
		if m, isMixed := v.(Mixed); isMixed {
			v = m[em.key()]
		}
		r.pointers[em.alias] = v
		return key, nil
	}

	entity, err := r.create(em, c, true)
	if err != nil {
		return nil, err
	}
	var element any = entity
	if rsm.mixed {
		element = Mixed{em.key(): entity}
	}

	var key any
	if col, ok := rsm.indexBy[em.alias]; ok {
		key = indexValue(row[col])
		if r.h.into != nil {
			if err := r.h.into.HydrateSet(key, entity); err != nil {
				return nil, err
			}
		}
		r.result.Set(key, element)
	} else {
		if r.h.into != nil {
			if err := r.h.into.HydrateAdd(entity); err != nil {
				return nil, err
			}
		}
		key = r.result.Append(element)
	}
	r.registry.Register(em.alias, c.id, key)
	r.pointers[em.alias] = entity
	return key, nil
}

func (r *Run) hydrateJoined(em *entityMapping, chunks map[string]*chunk, row Row) error {
	pc := chunks[em.parent]
	if !pc.nonEmpty {
		return nil
	}
	parent, ok := r.pointers[em.parent]
	if !ok || parent == nil {
		return nil
	}
	pm, err := model.GetModel(parent)
	if err != nil {
		return err
	}
	c := chunks[em.alias]
	rel, err := pm.Relation(em.relation)
	if err != nil {
		// the relation belongs to another subtype of a polymorphic parent
		if r.h.rsm.entities[em.parent].discriminated != nil && !c.nonEmpty {
			delete(r.pointers, em.alias)
			return nil
		}
		return &model.MappingError{Entity: pm.Name, Relation: em.relation, Reason: "relation is not declared"}
	}
	if em.expectCollection != nil && *em.expectCollection != rel.IsCollection() {
		want, got := "single-valued", "collection-valued"
		if *em.expectCollection {
			want, got = got, want
		}
		return &model.MappingError{Entity: pm.Name, Relation: rel.Name, Reason: fmt.Sprintf("query expects %s, metadata declares %s", want, got)}
	}
	if !rel.ShapeMatches() {
		return &model.MappingError{Entity: pm.Name, Relation: rel.Name, Reason: fmt.Sprintf("%s field has type %s", rel.Type, rel.FieldType)}
	}

	if rel.IsCollection() {
		return r.hydrateCollection(em, c, pc, parent, pm, rel, row)
	}
	return r.hydrateSingle(em, c, parent, pm, rel)
}

func (r *Run) hydrateCollection(em *entityMapping, c, pc *chunk, parent any, pm *model.Model, rel *model.Relation, row Row) error {
	coll, existing, err := r.collection(parent, pm, rel)
	if err != nil {
		return err
	}
	if !c.nonEmpty {
		return nil
	}

	path := em.parent + "." + em.alias
	regID := append(append(model.Identifier{}, pc.id...), c.id...)
	if slot, ok := r.registry.Lookup(path, regID); ok {
		if el, ok := coll.Element(slot); ok {
			r.pointers[em.alias] = el
			return nil
		}
	}

	if existing {
		// members of a loaded collection are only resolved, never added
		if el, ok := r.h.uow.Lookup(c.model, c.id); ok {
			r.pointers[em.alias] = el
		} else {
			delete(r.pointers, em.alias)
		}
		return nil
	}

	entity, err := r.create(em, c, false)
	if err != nil {
		return err
	}
	if col, ok := r.h.rsm.indexBy[em.alias]; ok {
		key := indexValue(row[col])
		if err := coll.HydrateSet(key, entity); err != nil {
			return err
		}
		r.registry.Register(path, regID, key)
	} else {
		if err := coll.HydrateAdd(entity); err != nil {
			return err
		}
		coll.Last()
		r.registry.Register(path, regID, coll.Key())
	}
	r.pointers[em.alias] = entity
	return nil
}

// collection returns the hydration handle for the to-many field rel of
// parent, creating it on first use in the run. A field that already holds
// an initialized collection is reused and reported as existing.
func (r *Run) collection(parent any, pm *model.Model, rel *model.Relation) (collection.Hydratable, bool, error) {
	key := collKey{owner: parent, field: rel.Name}
	if c, ok := r.collections[key]; ok {
		return c, r.existing[key], nil
	}

	field := pm.Value(parent).FieldByIndex(rel.Index)
	var (
		c        collection.Hydratable
		existing bool
	)
	switch rel.Kind {
	case model.KindCollection:
		fresh := field.IsNil()
		if fresh {
			field.Set(reflect.New(field.Type().Elem()))
		}
		h, ok := field.Interface().(collection.Hydratable)
		if !ok {
			return nil, false, &model.MappingError{Entity: pm.Name, Relation: rel.Name, Reason: fmt.Sprintf("%s cannot be hydrated", field.Type())}
		}
		if !fresh && h.IsInitialized() && !r.h.refresh {
			existing = true
		} else {
			h.Clear()
			h.SetInitialized(true)
		}
		c = h
	case model.KindSlice:
		var (
			s   *collection.SliceField
			err error
		)
		if field.IsNil() || r.h.refresh {
			s, err = collection.NewSliceField(field)
		} else {
			s, err = collection.WrapSliceField(field)
			existing = true
		}
		if err != nil {
			return nil, false, err
		}
		c = s
	default:
		return nil, false, &model.MappingError{Entity: pm.Name, Relation: rel.Name, Reason: "not a to-many field"}
	}

	r.collections[key] = c
	r.existing[key] = existing
	if !existing {
		r.fresh = append(r.fresh, c)
	}
	return c, existing, nil
}

func (r *Run) hydrateSingle(em *entityMapping, c *chunk, parent any, pm *model.Model, rel *model.Relation) error {
	field := pm.Value(parent).FieldByIndex(rel.Index)
	if !field.IsNil() && !r.h.refresh && !r.h.uow.IsUninitializedReference(field.Interface()) {
		r.pointers[em.alias] = field.Interface()
		return nil
	}
	if !c.nonEmpty {
		field.Set(reflect.Zero(field.Type()))
		delete(r.pointers, em.alias)
		return nil
	}

	entity, err := r.create(em, c, false)
	if err != nil {
		return err
	}
	if err := assign(field, entity, pm.Name, rel.Name); err != nil {
		return err
	}

	// bidirectional: point the child back at the parent
	inverse := rel.MappedBy
	if rel.IsOwningSide() {
		inverse = rel.InversedBy
	}
	if inverse != "" {
		if inv, ok := c.model.RelationMap[inverse]; ok && inv.Kind == model.KindPointer {
			back := c.model.Value(entity).FieldByIndex(inv.Index)
			if err := assign(back, parent, c.model.Name, inv.Name); err != nil {
				return err
			}
		}
	}
	r.pointers[em.alias] = entity
	return nil
}

func (r *Run) create(em *entityMapping, c *chunk, root bool) (any, error) {
	hints := &unitofwork.Hints{
		Context:  r.ctx,
		Refresh:  r.h.refresh,
		Detached: r.h.detached,
		Fetched:  r.fetched[em.alias],
	}
	if root && r.h.target != nil && !r.targetUsed {
		hints.Target = r.h.target
		r.targetUsed = true
	}
	entity, err := r.h.uow.CreateEntity(c.model, c.data, hints)
	if err != nil {
		return nil, err
	}
	r.entities++
	r.h.metrics.Entity(c.model.Name)
	return entity, nil
}

func (r *Run) mixedSlot(key any) Mixed {
	if v, ok := r.result.Get(key); ok {
		if m, ok := v.(Mixed); ok {
			return m
		}
	}
	m := Mixed{}
	r.result.Set(key, m)
	return m
}

func assign(field reflect.Value, v any, entity, relation string) error {
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(field.Type()) {
		return &model.MappingError{Entity: entity, Relation: relation, Reason: fmt.Sprintf("cannot assign %s to %s", rv.Type(), field.Type())}
	}
	field.Set(rv)
	return nil
}

// indexValue normalizes a driver value used as a key or scalar.
func indexValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
