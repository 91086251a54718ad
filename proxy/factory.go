package proxy

import (
	"context"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shrek82/jormx/logger"
	"github.com/shrek82/jormx/metrics"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/unitofwork"
)

// PersisterResolver returns the Persister loading entities of m.
type PersisterResolver func(m *model.Model) (Persister, error)

// Factory hands out lazy references and keeps them in a UnitOfWork, so a
// reference and a later query result for the same identifier are the same
// instance.
type Factory struct {
	cfg     Config
	resolve PersisterResolver
	uow     *unitofwork.UnitOfWork
	gen     *Generator
	genOpts []GeneratorOption
	log     logger.Logger
	metrics *metrics.Metrics
}

type FactoryOption func(*Factory)

func WithLogger(l logger.Logger) FactoryOption {
	return func(f *Factory) { f.log = l }
}

func WithMetrics(m *metrics.Metrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithStore publishes generated proxies to store.
func WithStore(store ArtifactStore) FactoryOption {
	return func(f *Factory) { f.genOpts = append(f.genOpts, WithArtifactStore(store)) }
}

func WithUnitOfWork(u *unitofwork.UnitOfWork) FactoryOption {
	return func(f *Factory) { f.uow = u }
}

// artifacts records the proxies generated by this process, keyed by
// directory and entity type.
var artifacts = xsync.NewMapOf[string, string]()

// NewFactory creates a factory and installs it as the reference factory of
// its UnitOfWork. A generator is set up when cfg names a directory and
// package; with AutoGenerate the proxy source of each entity type is
// published on its first reference.
func NewFactory(cfg Config, resolve PersisterResolver, opts ...FactoryOption) (*Factory, error) {
	if resolve == nil {
		return nil, fmt.Errorf("%w: no persister resolver", model.ErrConfiguration)
	}
	f := &Factory{cfg: cfg, resolve: resolve, log: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.uow == nil {
		f.uow = unitofwork.New(unitofwork.WithLogger(f.log))
	}
	if cfg.Dir != "" || cfg.Package != "" || cfg.AutoGenerate {
		genOpts := f.genOpts
		if cfg.ImportPath != "" {
			genOpts = append(genOpts, WithImportPath(cfg.ImportPath))
		}
		gen, err := NewGenerator(cfg.Dir, cfg.Package, genOpts...)
		if err != nil {
			return nil, err
		}
		f.gen = gen
	}
	f.uow.SetReferenceFactory(f)
	return f, nil
}

func (f *Factory) UnitOfWork() *unitofwork.UnitOfWork {
	return f.uow
}

// Reference returns a proxy for the entity of m identified by id. A managed
// instance is returned as is, wrapped in an initialized proxy if it has
// none; otherwise the proxy is uninitialized and nothing is loaded.
func (f *Factory) Reference(ctx context.Context, m *model.Model, id model.Identifier) (Proxy, error) {
	if entity, ok := f.uow.Lookup(m, id); ok {
		if ref, ok := f.uow.ReferenceOf(entity); ok {
			if p, ok := ref.(Proxy); ok {
				return p, nil
			}
		}
		p := New(m, entity)
		p.State().Bind(m.Name, m.Identifier(entity), nil, nil)
		p.MarkInitialized()
		f.uow.RegisterReference(m, id, p)
		return p, nil
	}
	return f.newReference(ctx, m, id)
}

// NewReference implements unitofwork.ReferenceFactory.
func (f *Factory) NewReference(ctx context.Context, m *model.Model, id model.Identifier) (unitofwork.LazyRef, error) {
	return f.newReference(ctx, m, id)
}

func (f *Factory) newReference(ctx context.Context, m *model.Model, id model.Identifier) (Proxy, error) {
	if err := f.ensureArtifact(ctx, m); err != nil {
		return nil, err
	}
	persister, err := f.resolve(m)
	if err != nil {
		return nil, err
	}
	target := m.New()
	if err := m.SetIdentifier(target, id); err != nil {
		return nil, err
	}
	p := New(m, target)
	f.bind(ctx, p, m, persister)
	f.uow.RegisterReference(m, id, p)
	f.log.Debug("reference %s%s", m.Name, id)
	return p, nil
}

// bind installs the loader of p. Loads run detached from the cancellation
// of ctx, since a proxy usually outlives the request that created it.
func (f *Factory) bind(ctx context.Context, p Proxy, m *model.Model, persister Persister) {
	ctx = context.WithoutCancel(ctx)
	id := m.Identifier(p.Target())

	load := func(target any) (any, error) {
		loaded, err := persister.Load(ctx, id, target)
		if err == nil && loaded == nil {
			err = &model.EntityNotFoundError{Entity: m.Name, ID: id}
		}
		f.metrics.ProxyLoaded(m.Name, err)
		if err != nil {
			f.log.Warn("load %s%s: %v", m.Name, id, err)
		}
		return loaded, err
	}

	initializer := func(l *Lazy) error {
		target := p.Target()
		loaded, err := load(target)
		if err != nil {
			return err
		}
		if loaded != target {
			if err := m.CopyState(target, loaded); err != nil {
				return err
			}
		}
		// Hydrating into the target through the UnitOfWork has already
		// initialized the proxy and run PostLoad.
		if l.IsInitialized() {
			return nil
		}
		l.MarkInitialized()
		if m.HasPostLoad {
			return model.RunPostLoad(target)
		}
		return nil
	}

	cloner := func(target any) error {
		loaded, err := load(nil)
		if err != nil {
			return err
		}
		return m.CopyState(target, loaded)
	}

	p.State().Bind(m.Name, id, initializer, cloner)
}

// ProxyOf returns the proxy controlling entity, if entity is a reference
// target.
func (f *Factory) ProxyOf(entity any) (Proxy, bool) {
	ref, ok := f.uow.ReferenceOf(entity)
	if !ok {
		return nil, false
	}
	p, ok := ref.(Proxy)
	return p, ok
}

// Attach connects a woken proxy to this factory. An uninitialized proxy gets
// a loader again; an initialized one has its to-one stubs replaced by
// references. The target becomes managed unless another instance already is.
func (f *Factory) Attach(ctx context.Context, p Proxy) error {
	m, err := model.GetModel(p.Target())
	if err != nil {
		return err
	}
	id := m.Identifier(p.Target())
	if !p.IsInitialized() {
		persister, err := f.resolve(m)
		if err != nil {
			return err
		}
		f.bind(ctx, p, m, persister)
	} else if err := f.attachRefs(ctx, m, p.Target()); err != nil {
		return err
	}
	if _, managed := f.uow.Lookup(m, id); !managed {
		f.uow.RegisterReference(m, id, p)
	}
	return nil
}

// attachRefs replaces the identifier stubs a woken proxy holds with managed
// references, and gives collections that were never loaded a loader.
func (f *Factory) attachRefs(ctx context.Context, m *model.Model, target any) error {
	v := m.Value(target)
	for _, rel := range m.Relations {
		field := v.FieldByIndex(rel.Index)
		if field.IsNil() {
			continue
		}
		tm, err := rel.TargetModel()
		if err != nil {
			return err
		}
		switch rel.Kind {
		case model.KindPointer:
			ref, err := f.managed(ctx, m, rel, tm, field)
			if err != nil {
				return err
			}
			field.Set(ref)
		case model.KindSlice:
			for i := 0; i < field.Len(); i++ {
				elem := field.Index(i)
				if elem.Kind() != reflect.Ptr || elem.IsNil() {
					continue
				}
				ref, err := f.managed(ctx, m, rel, tm, elem)
				if err != nil {
					return err
				}
				elem.Set(ref)
			}
		case model.KindCollection:
			c, ok := field.Interface().(memberSet)
			if !ok {
				continue
			}
			if !c.IsInitialized() {
				if err := f.uow.BindCollection(ctx, target, m, rel); err != nil {
					return err
				}
				continue
			}
			keys := c.Keys()
			for i, e := range c.Elements() {
				ev := reflect.ValueOf(e)
				if ev.Kind() != reflect.Ptr || ev.IsNil() {
					continue
				}
				ref, err := f.managed(ctx, m, rel, tm, ev)
				if err != nil {
					return err
				}
				if err := c.HydrateSet(keys[i], ref.Interface()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type memberSet interface {
	IsInitialized() bool
	Keys() []any
	Elements() []any
	HydrateSet(key, v any) error
}

// managed returns the managed instance, or a reference, for the entity of tm
// held in stub.
func (f *Factory) managed(ctx context.Context, m *model.Model, rel *model.Relation, tm *model.Model, stub reflect.Value) (reflect.Value, error) {
	ref, err := f.Reference(ctx, tm, tm.Identifier(stub.Interface()))
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(ref.Target())
	if !rv.Type().AssignableTo(stub.Type()) {
		return reflect.Value{}, &model.MappingError{Entity: m.Name, Relation: rel.Name, Reason: fmt.Sprintf("cannot assign %s", rv.Type())}
	}
	return rv, nil
}

// GenerateProxies publishes the proxy sources of models and returns the
// names of the artifacts that changed.
func (f *Factory) GenerateProxies(ctx context.Context, models ...*model.Model) ([]string, error) {
	if f.gen == nil {
		return nil, fmt.Errorf("%w: proxy directory is not configured", model.ErrConfiguration)
	}
	var changed []string
	for _, m := range models {
		d := Describe(m)
		for _, w := range d.Warnings {
			f.log.Warn("proxy %s: %s", d.Entity, w)
		}
		name, ok, err := f.gen.Generate(ctx, d)
		f.record(ok, err)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, name)
		}
	}
	return changed, nil
}

// ensureArtifact publishes the proxy source of m once per process. Callers
// racing on the same type wait for the first to finish; a failure is not
// remembered.
func (f *Factory) ensureArtifact(ctx context.Context, m *model.Model) error {
	if f.gen == nil || !f.cfg.AutoGenerate {
		return nil
	}
	var genErr error
	artifacts.Compute(f.gen.Dir()+"\x00"+m.Name, func(old string, loaded bool) (string, bool) {
		if loaded {
			return old, false
		}
		name, changed, err := f.gen.Generate(ctx, Describe(m))
		f.record(changed, err)
		if err != nil {
			genErr = err
			return "", true
		}
		f.log.Debug("proxy artifact %s (changed=%v)", name, changed)
		return name, false
	})
	return genErr
}

func (f *Factory) record(changed bool, err error) {
	switch {
	case err != nil:
		f.metrics.Artifact("failed")
	case changed:
		f.metrics.Artifact("written")
	default:
		f.metrics.Artifact("unchanged")
	}
}
