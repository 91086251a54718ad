package core

import (
	"context"
	"fmt"

	"github.com/shrek82/jormx/dialect"
	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/proxy"
)

// plan is a cached statement and the validated mapping for its rows.
type plan struct {
	sql string
	rsm *hydrate.ResultSetMapping
}

// EntityPersister loads single entities of one model by identifier.
type EntityPersister struct {
	db    *DB
	model *model.Model
}

func (db *DB) persister(m *model.Model) (*EntityPersister, error) {
	if len(m.Identifiers) == 0 {
		return nil, fmt.Errorf("%w: %s has no identifier", model.ErrInvalidModel, m.Name)
	}
	ep, _ := db.persisters.LoadOrCompute(m.Name, func() *EntityPersister {
		return &EntityPersister{db: db, model: m}
	})
	return ep, nil
}

// persisterFor resolves persisters for the proxy factory.
func (db *DB) persisterFor(m *model.Model) (proxy.Persister, error) {
	return db.persister(m)
}

// Load fetches the entity identified by id. A non-nil target is filled in
// place and becomes the managed instance; a nil target yields a detached
// copy that leaves the identity map untouched. A missing row returns nil.
func (p *EntityPersister) Load(ctx context.Context, id model.Identifier, target any) (any, error) {
	if target != nil {
		return p.load(ctx, p.db.pool, id, hydrate.WithTarget(target))
	}
	return p.load(ctx, p.db.pool, id, hydrate.WithDetached())
}

func (p *EntityPersister) load(ctx context.Context, exec Executor, id model.Identifier, opts ...hydrate.Option) (any, error) {
	if len(id) != len(p.model.Identifiers) {
		return nil, fmt.Errorf("%w: %s expects %d identifier values, got %d", ErrInvalidQuery, p.model.Name, len(p.model.Identifiers), len(id))
	}
	pl, err := p.plan()
	if err != nil {
		return nil, err
	}
	res, err := newQuery(p.db, exec, pl.rsm, pl.sql, []any(id)).
		WithContext(ctx).
		WithHint(opts...).
		Result()
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, nil
	}
	return res.At(0), nil
}

func (p *EntityPersister) plan() (*plan, error) {
	key := "entity:" + p.model.Name
	if pl, ok := p.db.plans.Get(key); ok {
		return pl, nil
	}
	d := p.db.dialect
	m := p.model

	b := NewBuilder(d).
		SetTable(m.TableName).
		Select(quoteAll(d, columnsOf(m))...)
	for _, f := range m.Identifiers {
		b.Where(d.Quote(f.Column) + " = ?")
	}
	sql, _ := b.Build()
	PutBuilder(b)

	rsm := hydrate.NewMapping().
		AddEntityResult(m, "e").
		AddAllFields("e", "")
	if err := rsm.Validate(); err != nil {
		return nil, err
	}
	pl := &plan{sql: sql, rsm: rsm}
	p.db.plans.Add(key, pl)
	return pl, nil
}

// columnsOf lists the persistent columns of m followed by the foreign key
// columns of its belongs_to relations not already mapped to a field.
func columnsOf(m *model.Model) []string {
	cols := make([]string, 0, len(m.Fields)+len(m.Relations))
	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		cols = append(cols, f.Column)
		seen[f.Column] = true
	}
	for _, rel := range m.Relations {
		if rel.Type != model.RelationBelongsTo {
			continue
		}
		col := m.ColumnOf(rel.ForeignKey)
		if !seen[col] {
			cols = append(cols, col)
			seen[col] = true
		}
	}
	return cols
}

func quoteAll(d dialect.Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}

// selectList renders prefix.col AS col for every column, so joined
// statements keep bare column names in their result.
func selectList(d dialect.Dialect, prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + d.Quote(c) + " AS " + d.Quote(c)
	}
	return out
}
