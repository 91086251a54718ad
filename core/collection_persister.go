package core

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/shrek82/jormx/collection"
	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/model"
)

// BindCollection gives an unfetched Collection field a loader for its
// relation. Plain slice fields cannot be lazy and are left alone.
func (db *DB) BindCollection(ctx context.Context, owner any, m *model.Model, rel *model.Relation) (any, error) {
	if rel.Kind != model.KindCollection || !rel.IsCollection() {
		return nil, nil
	}
	target, err := rel.TargetModel()
	if err != nil {
		return nil, err
	}
	v := reflect.New(rel.FieldType.Elem()).Interface()
	b, ok := v.(collection.Bindable)
	if !ok {
		return nil, nil
	}
	b.Bind(&relationLoader{db: db, owner: owner, model: m, rel: rel, target: target}, rel.ExtraLazy)
	return v, nil
}

// relationLoader queries the members of one to-many relation of one owner.
// has_many members are found by their foreign key, many_to_many members
// through the join table.
type relationLoader struct {
	db     *DB
	owner  any
	model  *model.Model
	rel    *model.Relation
	target *model.Model
}

func (l *relationLoader) Load(ctx context.Context) ([]any, error) {
	return l.Slice(ctx, 0, -1)
}

func (l *relationLoader) Slice(ctx context.Context, offset, limit int) ([]any, error) {
	key, err := l.ownerKey()
	if err != nil {
		return nil, err
	}
	pl, err := l.selectPlan()
	if err != nil {
		return nil, err
	}
	sql, args := pl.sql, []any{key}
	if offset > 0 || limit >= 0 {
		clause, pageArgs := l.db.dialect.LimitOffsetSQL(2, limit, offset)
		sql += clause
		args = append(args, pageArgs...)
	}
	res, err := newQuery(l.db, l.db.pool, pl.rsm, sql, args).WithContext(ctx).Result()
	if err != nil {
		return nil, err
	}
	return res.Values(), nil
}

func (l *relationLoader) Count(ctx context.Context) (int, error) {
	key, err := l.ownerKey()
	if err != nil {
		return 0, err
	}
	table, fk := l.memberTable()
	d := l.db.dialect
	b := NewBuilder(d).
		SetTable(table).
		Select("COUNT(*)").
		Where(d.Quote(fk)+" = ?", key)
	defer PutBuilder(b)
	return l.count(ctx, b)
}

func (l *relationLoader) Contains(ctx context.Context, element any) (bool, error) {
	id := l.target.Identifier(element)
	if id == nil || id.IsZero() {
		return false, nil
	}
	key, err := l.ownerKey()
	if err != nil {
		return false, err
	}
	table, fk := l.memberTable()
	ref := l.target.PKField.Column
	if l.rel.Type == model.RelationManyToMany {
		ref = l.rel.JoinRef
	}
	d := l.db.dialect
	b := NewBuilder(d).
		SetTable(table).
		Select("COUNT(*)").
		Where(d.Quote(fk)+" = ?", key).
		Where(d.Quote(ref)+" = ?", id[0])
	defer PutBuilder(b)
	n, err := l.count(ctx, b)
	return n > 0, err
}

func (l *relationLoader) count(ctx context.Context, b Builder) (int, error) {
	sql, args := b.Build()
	start := time.Now()
	var n int
	err := l.db.pool.QueryRowContext(ctx, sql, args...).Scan(&n)
	l.db.logSQL(sql, time.Since(start), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return n, nil
}

// memberTable is the table holding the owner reference and its column.
func (l *relationLoader) memberTable() (table, fk string) {
	if l.rel.Type == model.RelationManyToMany {
		return l.rel.JoinTable, l.rel.JoinFK
	}
	return l.target.TableName, l.target.ColumnOf(l.rel.ForeignKey)
}

// ownerKey reads the owner column members point at: the referenced
// column for has_many, the identifier for many_to_many.
func (l *relationLoader) ownerKey() (any, error) {
	if l.rel.Type == model.RelationHasMany {
		if f, ok := l.model.FieldMap[l.rel.References]; ok {
			if v, ok := l.model.FieldValue(l.owner, f.Name); ok {
				return v, nil
			}
		}
	}
	id := l.model.Identifier(l.owner)
	if len(id) != 1 {
		return nil, fmt.Errorf("%w: %s.%s needs a single column owner key", model.ErrInvalidModel, l.model.Name, l.rel.Name)
	}
	return id[0], nil
}

func (l *relationLoader) selectPlan() (*plan, error) {
	key := "relation:" + l.model.Name + "." + l.rel.Name
	if pl, ok := l.db.plans.Get(key); ok {
		return pl, nil
	}
	d := l.db.dialect
	t := l.target
	pk := d.Quote(t.PKField.Column)

	b := NewBuilder(d).
		SetTable(t.TableName).
		Alias("t").
		Select(selectList(d, "t", columnsOf(t))...).
		OrderBy("t." + pk)
	if l.rel.Type == model.RelationManyToMany {
		b.Joins(fmt.Sprintf("JOIN %s j ON j.%s = t.%s", d.Quote(l.rel.JoinTable), d.Quote(l.rel.JoinRef), pk)).
			Where("j." + d.Quote(l.rel.JoinFK) + " = ?")
	} else {
		b.Where("t." + d.Quote(t.ColumnOf(l.rel.ForeignKey)) + " = ?")
	}
	sql, _ := b.Build()
	PutBuilder(b)

	rsm := hydrate.NewMapping().
		AddEntityResult(t, "e").
		AddAllFields("e", "")
	if err := rsm.Validate(); err != nil {
		return nil, err
	}
	pl := &plan{sql: sql, rsm: rsm}
	l.db.plans.Add(key, pl)
	return pl, nil
}
