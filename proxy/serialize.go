package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/shrek82/jormx/collection"
	"github.com/shrek82/jormx/model"
)

// snapshot is the serialized form of a proxy. Associations are written as
// identifier maps; a woken proxy gets identifier-only stubs for them.
// Collections that were never loaded are listed in Lazy by relation name.
type snapshot struct {
	Type        string                     `json:"type"`
	Initialized bool                       `json:"initialized"`
	ID          map[string]json.RawMessage `json:"id"`
	Fields      map[string]json.RawMessage `json:"fields,omitempty"`
	Refs        map[string]idDoc           `json:"refs,omitempty"`
	Many        map[string][]idDoc         `json:"many,omitempty"`
	Lazy        []string                   `json:"lazy,omitempty"`
}

type idDoc map[string]json.RawMessage

type elementLister interface {
	IsInitialized() bool
	Elements() []any
}

// Sleep serializes p. An uninitialized proxy writes its identifier and
// transient fields only, and is not loaded by serialization.
func Sleep(p Proxy) ([]byte, error) {
	target := p.Target()
	m, err := model.GetModel(target)
	if err != nil {
		return nil, err
	}
	v := m.Value(target)
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: proxy of %s has no target", model.ErrConfiguration, m.Name)
	}

	snap := snapshot{Type: m.Name, Initialized: p.IsInitialized(), Fields: map[string]json.RawMessage{}}
	if snap.ID, err = idOf(m, v); err != nil {
		return nil, err
	}
	put := func(f *model.Field) error {
		raw, err := json.Marshal(v.FieldByIndex(f.Index).Interface())
		if err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
		snap.Fields[f.Name] = raw
		return nil
	}
	for _, f := range m.Transient {
		if err := put(f); err != nil {
			return nil, err
		}
	}
	if !snap.Initialized {
		return json.Marshal(snap)
	}

	if m.HasBeforeSerialize {
		if err := target.(model.BeforeSerializer).BeforeSerialize(); err != nil {
			return nil, err
		}
	}
	for _, f := range m.Fields {
		if f.IsPK {
			continue
		}
		if err := put(f); err != nil {
			return nil, err
		}
	}
	for _, rel := range m.Relations {
		if err := sleepRelation(&snap, rel, v.FieldByIndex(rel.Index)); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, rel.Name, err)
		}
	}
	return json.Marshal(snap)
}

func sleepRelation(snap *snapshot, rel *model.Relation, field reflect.Value) error {
	tm, err := rel.TargetModel()
	if err != nil {
		return err
	}
	var elems []reflect.Value
	switch rel.Kind {
	case model.KindPointer:
		if snap.Refs == nil {
			snap.Refs = map[string]idDoc{}
		}
		if field.IsNil() {
			snap.Refs[rel.Name] = nil
			return nil
		}
		doc, err := idOf(tm, field.Elem())
		snap.Refs[rel.Name] = doc
		return err
	case model.KindCollection:
		if field.IsNil() {
			return nil
		}
		c, ok := field.Interface().(elementLister)
		if !ok {
			return nil
		}
		if !c.IsInitialized() {
			snap.Lazy = append(snap.Lazy, rel.Name)
			return nil
		}
		for _, e := range c.Elements() {
			elems = append(elems, reflect.ValueOf(e))
		}
	case model.KindSlice:
		if field.IsNil() {
			return nil
		}
		for i := 0; i < field.Len(); i++ {
			elems = append(elems, field.Index(i))
		}
	}

	docs := make([]idDoc, 0, len(elems))
	for _, e := range elems {
		if e.Kind() == reflect.Ptr {
			if e.IsNil() {
				continue
			}
			e = e.Elem()
		}
		doc, err := idOf(tm, e)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if snap.Many == nil {
		snap.Many = map[string][]idDoc{}
	}
	snap.Many[rel.Name] = docs
	return nil
}

func idOf(m *model.Model, v reflect.Value) (idDoc, error) {
	doc := make(idDoc, len(m.Identifiers))
	for _, f := range m.Identifiers {
		raw, err := json.Marshal(v.FieldByIndex(f.Index).Interface())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
		doc[f.Name] = raw
	}
	return doc, nil
}

// Wake restores a serialized proxy of any registered or parsed entity type.
func Wake(data []byte) (Proxy, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: decode proxy snapshot: %v", model.ErrConfiguration, err)
	}
	m, ok := resolve(head.Type)
	if !ok {
		return nil, fmt.Errorf("%w: unknown proxy type %q", model.ErrConfiguration, head.Type)
	}
	p := New(m, m.New())
	if err := WakeInto(p, data); err != nil {
		return nil, err
	}
	return p, nil
}

// WakeInto restores p from data. A proxy that was initialized when it was
// serialized comes back initialized. One that was not comes back detached:
// its identifier and transient fields are readable, and loading fails until
// Factory.Attach gives it a loader.
func WakeInto(p Proxy, data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: decode proxy snapshot: %v", model.ErrConfiguration, err)
	}
	m, ok := resolve(snap.Type)
	if !ok {
		return fmt.Errorf("%w: unknown proxy type %q", model.ErrConfiguration, snap.Type)
	}
	if g, ok := p.(*Ghost); ok {
		g.prepare(m)
	}
	v := m.Value(p.Target())
	if !v.IsValid() {
		return fmt.Errorf("%w: cannot wake %s into %T", model.ErrConfiguration, snap.Type, p.Target())
	}

	v.Set(reflect.Zero(m.Type))
	if err := fillID(m, v, snap.ID); err != nil {
		return err
	}
	for name, raw := range snap.Fields {
		f, ok := m.Field(name)
		if !ok || f.IsPK {
			continue
		}
		if err := json.Unmarshal(raw, v.FieldByIndex(f.Index).Addr().Interface()); err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, name, err)
		}
	}
	for name, doc := range snap.Refs {
		rel, ok := m.RelationMap[name]
		if !ok || rel.Kind != model.KindPointer || doc == nil {
			continue
		}
		stub, err := stubOf(rel, doc)
		if err != nil {
			return err
		}
		v.FieldByIndex(rel.Index).Set(reflect.ValueOf(stub))
	}
	for name, docs := range snap.Many {
		rel, ok := m.RelationMap[name]
		if !ok || rel.Kind == model.KindPointer {
			continue
		}
		if err := wakeMany(v.FieldByIndex(rel.Index), rel, docs); err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, name, err)
		}
	}

	id := m.Identifier(p.Target())
	detached := fmt.Errorf("%w: proxy of %s%s is detached", model.ErrConfiguration, m.Name, id)
	for _, name := range snap.Lazy {
		rel, ok := m.RelationMap[name]
		if !ok || rel.Kind != model.KindCollection {
			continue
		}
		if err := wakeLazy(v.FieldByIndex(rel.Index), rel, detached); err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, name, err)
		}
	}

	lazy := p.State()
	if snap.Initialized {
		lazy.Bind(m.Name, id, nil, nil)
		lazy.MarkInitialized()
		if m.HasAfterDeserialize {
			return p.Target().(model.AfterDeserializer).AfterDeserialize()
		}
		return nil
	}
	lazy.initialized = false
	lazy.Bind(m.Name, id,
		func(*Lazy) error { return detached },
		func(any) error { return detached })
	return nil
}

func wakeMany(field reflect.Value, rel *model.Relation, docs []idDoc) error {
	var into collection.Hydratable
	switch rel.Kind {
	case model.KindCollection:
		c, ok := reflect.New(rel.FieldType.Elem()).Interface().(collection.Hydratable)
		if !ok {
			return fmt.Errorf("%w: %s cannot be hydrated", model.ErrInvalidModel, rel.FieldType)
		}
		field.Set(reflect.ValueOf(c))
		into = c
	case model.KindSlice:
		s, err := collection.NewSliceField(field)
		if err != nil {
			return err
		}
		into = s
	}
	for _, doc := range docs {
		stub, err := stubOf(rel, doc)
		if err != nil {
			return err
		}
		if err := into.HydrateAdd(stub); err != nil {
			return err
		}
	}
	into.SetInitialized(true)
	return nil
}

// wakeLazy puts an unloaded collection into field. Its loader fails with
// detached until Factory.Attach binds a real one.
func wakeLazy(field reflect.Value, rel *model.Relation, detached error) error {
	c, ok := reflect.New(rel.FieldType.Elem()).Interface().(collection.Bindable)
	if !ok {
		return fmt.Errorf("%w: %s cannot be lazy", model.ErrInvalidModel, rel.FieldType)
	}
	c.Bind(detachedLoader{detached}, rel.ExtraLazy)
	field.Set(reflect.ValueOf(c))
	return nil
}

type detachedLoader struct{ err error }

func (l detachedLoader) Load(context.Context) ([]any, error)            { return nil, l.err }
func (l detachedLoader) Count(context.Context) (int, error)             { return 0, l.err }
func (l detachedLoader) Slice(context.Context, int, int) ([]any, error) { return nil, l.err }
func (l detachedLoader) Contains(context.Context, any) (bool, error)    { return false, l.err }

// stubOf allocates a target entity holding only the identifier in doc.
func stubOf(rel *model.Relation, doc idDoc) (any, error) {
	tm, err := rel.TargetModel()
	if err != nil {
		return nil, err
	}
	stub := tm.New()
	if err := fillID(tm, tm.Value(stub), doc); err != nil {
		return nil, err
	}
	return stub, nil
}

func fillID(m *model.Model, v reflect.Value, doc map[string]json.RawMessage) error {
	for _, f := range m.Identifiers {
		raw, ok := doc[f.Name]
		if !ok {
			return fmt.Errorf("%w: snapshot of %s lacks identifier %s", model.ErrConfiguration, m.Name, f.Name)
		}
		if err := json.Unmarshal(raw, v.FieldByIndex(f.Index).Addr().Interface()); err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
	}
	return nil
}
