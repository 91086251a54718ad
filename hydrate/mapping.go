package hydrate

import (
	"fmt"

	"github.com/shrek82/jormx/model"
)

// NewObjectFunc builds one "new object" result from its constructor arguments.
type NewObjectFunc func(args ...any) (any, error)

type fieldRef struct {
	alias string
	name  string // field name, or relation name for meta columns
}

type entityMapping struct {
	alias            string
	model            *model.Model
	resultAlias      string
	parent           string
	relation         string
	expectCollection *bool
	discriminator    string
	discriminated    map[string]*model.Model
}

// key is the name the entity is stored under in a mixed result element.
func (em *entityMapping) key() string {
	if em.resultAlias != "" {
		return em.resultAlias
	}
	return em.alias
}

type newObject struct {
	name    string
	ctor    NewObjectFunc
	columns []string
}

// ResultSetMapping describes which result columns belong to which alias,
// how aliases nest, and what else a row carries. Builder methods record the
// first error and Validate reports it.
type ResultSetMapping struct {
	order         []string
	entities      map[string]*entityMapping
	fieldColumns  map[string]fieldRef
	metaColumns   map[string]fieldRef
	columnOrder   []string
	scalars       map[string]string
	scalarOrder   []string
	indexBy       map[string]string
	indexByField  map[string]string
	indexByScalar string
	newObjects    []*newObject
	mixed         bool
	err           error
	validated     bool
}

func NewMapping() *ResultSetMapping {
	return &ResultSetMapping{
		entities:     make(map[string]*entityMapping),
		fieldColumns: make(map[string]fieldRef),
		metaColumns:  make(map[string]fieldRef),
		scalars:      make(map[string]string),
		indexBy:      make(map[string]string),
		indexByField: make(map[string]string),
	}
}

func (rsm *ResultSetMapping) fail(format string, args ...any) *ResultSetMapping {
	if rsm.err == nil {
		rsm.err = fmt.Errorf("%w: "+format, append([]any{model.ErrConfiguration}, args...)...)
	}
	return rsm
}

func (rsm *ResultSetMapping) addEntity(entity any, alias string) *entityMapping {
	if _, dup := rsm.entities[alias]; dup {
		rsm.fail("alias %q declared twice", alias)
		return nil
	}
	m, err := model.GetModel(entity)
	if err != nil {
		if rsm.err == nil {
			rsm.err = err
		}
		return nil
	}
	em := &entityMapping{alias: alias, model: m}
	rsm.entities[alias] = em
	rsm.order = append(rsm.order, alias)
	rsm.validated = false
	return em
}

// AddEntityResult declares a root alias. resultAlias names the entity inside
// mixed result elements and defaults to the alias.
func (rsm *ResultSetMapping) AddEntityResult(entity any, alias string, resultAlias ...string) *ResultSetMapping {
	if em := rsm.addEntity(entity, alias); em != nil && len(resultAlias) > 0 {
		em.resultAlias = resultAlias[0]
	}
	return rsm
}

// AddJoinedEntityResult declares alias as the relation field of parentAlias.
// The parent must already be declared, which keeps aliases a tree processed
// parents first.
func (rsm *ResultSetMapping) AddJoinedEntityResult(entity any, alias, parentAlias, relation string) *ResultSetMapping {
	if _, ok := rsm.entities[parentAlias]; !ok {
		return rsm.fail("parent alias %q of %q is not declared", parentAlias, alias)
	}
	if em := rsm.addEntity(entity, alias); em != nil {
		em.parent = parentAlias
		em.relation = relation
	}
	return rsm
}

// ExpectCollection records whether the query treats alias as a to-many
// endpoint. Hydration fails when the metadata disagrees.
func (rsm *ResultSetMapping) ExpectCollection(alias string, collection bool) *ResultSetMapping {
	em, ok := rsm.entities[alias]
	if !ok {
		return rsm.fail("unknown alias %q", alias)
	}
	em.expectCollection = &collection
	return rsm
}

// AddFieldResult maps column to field of the entity behind alias.
func (rsm *ResultSetMapping) AddFieldResult(alias, column, field string) *ResultSetMapping {
	if _, ok := rsm.entities[alias]; !ok {
		return rsm.fail("unknown alias %q", alias)
	}
	rsm.fieldColumns[column] = fieldRef{alias: alias, name: field}
	rsm.columnOrder = append(rsm.columnOrder, column)
	return rsm
}

// AddMetaResult maps a foreign key column to a to-one relation of alias.
func (rsm *ResultSetMapping) AddMetaResult(alias, column, relation string) *ResultSetMapping {
	if _, ok := rsm.entities[alias]; !ok {
		return rsm.fail("unknown alias %q", alias)
	}
	rsm.metaColumns[column] = fieldRef{alias: alias, name: relation}
	return rsm
}

// AddAllFields maps every persistent field of alias to prefix+column, and
// every belongs_to foreign key to prefix+foreign key column.
func (rsm *ResultSetMapping) AddAllFields(alias, prefix string) *ResultSetMapping {
	em, ok := rsm.entities[alias]
	if !ok {
		return rsm.fail("unknown alias %q", alias)
	}
	for _, f := range em.model.Fields {
		rsm.AddFieldResult(alias, prefix+f.Column, f.Name)
	}
	for _, rel := range em.model.Relations {
		if rel.Type == model.RelationBelongsTo {
			rsm.AddMetaResult(alias, prefix+em.model.ColumnOf(rel.ForeignKey), rel.Name)
		}
	}
	return rsm
}

// AddScalarResult maps column to a scalar named name in mixed results.
func (rsm *ResultSetMapping) AddScalarResult(column, name string) *ResultSetMapping {
	if _, dup := rsm.scalars[column]; !dup {
		rsm.scalarOrder = append(rsm.scalarOrder, column)
	}
	rsm.scalars[column] = name
	rsm.validated = false
	return rsm
}

// AddIndexBy keys alias by the value of one of its fields.
func (rsm *ResultSetMapping) AddIndexBy(alias, field string) *ResultSetMapping {
	rsm.indexByField[alias] = field
	rsm.validated = false
	return rsm
}

// AddIndexByColumn keys alias by the raw value of column.
func (rsm *ResultSetMapping) AddIndexByColumn(alias, column string) *ResultSetMapping {
	rsm.indexBy[alias] = column
	return rsm
}

// AddIndexByScalar keys scalar-only result elements by column.
func (rsm *ResultSetMapping) AddIndexByScalar(column string) *ResultSetMapping {
	rsm.indexByScalar = column
	return rsm
}

// AddNewObjectResult builds a value per row from columns, in argument order.
func (rsm *ResultSetMapping) AddNewObjectResult(name string, ctor NewObjectFunc, columns ...string) *ResultSetMapping {
	if ctor == nil {
		return rsm.fail("new object %q has no constructor", name)
	}
	rsm.newObjects = append(rsm.newObjects, &newObject{name: name, ctor: ctor, columns: columns})
	rsm.validated = false
	return rsm
}

// SetDiscriminatorColumn makes alias polymorphic: the value of column picks
// the concrete entity among those added with AddDiscriminatorValue.
func (rsm *ResultSetMapping) SetDiscriminatorColumn(alias, column string) *ResultSetMapping {
	em, ok := rsm.entities[alias]
	if !ok {
		return rsm.fail("unknown alias %q", alias)
	}
	em.discriminator = column
	if em.discriminated == nil {
		em.discriminated = make(map[string]*model.Model)
	}
	return rsm
}

func (rsm *ResultSetMapping) AddDiscriminatorValue(alias, value string, entity any) *ResultSetMapping {
	em, ok := rsm.entities[alias]
	if !ok || em.discriminated == nil {
		return rsm.fail("alias %q has no discriminator column", alias)
	}
	m, err := model.GetModel(entity)
	if err != nil {
		if rsm.err == nil {
			rsm.err = err
		}
		return rsm
	}
	em.discriminated[value] = m
	return rsm
}

// SetMixed declares that result elements combine entities with scalars or
// several root entities.
func (rsm *ResultSetMapping) SetMixed(mixed bool) *ResultSetMapping {
	rsm.mixed = mixed
	rsm.validated = false
	return rsm
}

func (rsm *ResultSetMapping) IsMixed() bool {
	return rsm.mixed
}

// Aliases returns the declared aliases, parents before children.
func (rsm *ResultSetMapping) Aliases() []string {
	return append([]string(nil), rsm.order...)
}

// Roots returns the aliases without parent.
func (rsm *ResultSetMapping) Roots() []string {
	var roots []string
	for _, alias := range rsm.order {
		if rsm.entities[alias].parent == "" {
			roots = append(roots, alias)
		}
	}
	return roots
}

// Model returns the entity metadata declared for alias.
func (rsm *ResultSetMapping) Model(alias string) (*model.Model, bool) {
	em, ok := rsm.entities[alias]
	if !ok {
		return nil, false
	}
	return em.model, true
}

// Validate checks the mapping once; later calls are free until it changes.
func (rsm *ResultSetMapping) Validate() error {
	if rsm.err != nil {
		return rsm.err
	}
	if rsm.validated {
		return nil
	}

	roots := rsm.Roots()
	if !rsm.mixed {
		switch {
		case len(rsm.scalars) > 0:
			return fmt.Errorf("%w: scalar results need a mixed mapping", model.ErrConfiguration)
		case len(roots) > 1:
			return fmt.Errorf("%w: %d root aliases need a mixed mapping", model.ErrConfiguration, len(roots))
		case len(rsm.newObjects) > 1 || (len(rsm.newObjects) == 1 && len(roots) > 0):
			return fmt.Errorf("%w: new object results beside entities need a mixed mapping", model.ErrConfiguration)
		}
	}

	for alias, field := range rsm.indexByField {
		em, ok := rsm.entities[alias]
		if !ok {
			return fmt.Errorf("%w: index-by on unknown alias %q", model.ErrConfiguration, alias)
		}
		column := ""
		for _, col := range rsm.columnOrder {
			if ref := rsm.fieldColumns[col]; ref.alias == alias && ref.name == field {
				column = col
				break
			}
		}
		if column == "" {
			return fmt.Errorf("%w: index-by field %s.%s is not selected", model.ErrConfiguration, em.model.Name, field)
		}
		rsm.indexBy[alias] = column
	}

	for _, alias := range rsm.order {
		em := rsm.entities[alias]
		candidates := []*model.Model{em.model}
		for _, m := range em.discriminated {
			candidates = append(candidates, m)
		}
		for _, m := range candidates {
			for _, id := range m.Identifiers {
				if !rsm.maps(alias, id.Name) {
					return fmt.Errorf("%w: identifier %s.%s of alias %q is not selected", model.ErrConfiguration, m.Name, id.Name, alias)
				}
			}
		}
		if em.parent != "" {
			// a polymorphic parent may declare the relation on some subtypes only
			pm := rsm.entities[em.parent]
			_, err := pm.model.Relation(em.relation)
			for _, sub := range pm.discriminated {
				if err == nil {
					break
				}
				_, err = sub.Relation(em.relation)
			}
			if err != nil {
				return fmt.Errorf("%w: %v", model.ErrConfiguration, err)
			}
		}
	}

	rsm.validated = true
	return nil
}

func (rsm *ResultSetMapping) maps(alias, field string) bool {
	for _, ref := range rsm.fieldColumns {
		if ref.alias == alias && ref.name == field {
			return true
		}
	}
	return false
}

// fetched lists, per alias, the relations filled by joined aliases.
func (rsm *ResultSetMapping) fetched() map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for _, alias := range rsm.order {
		em := rsm.entities[alias]
		if em.parent == "" {
			continue
		}
		if out[em.parent] == nil {
			out[em.parent] = make(map[string]bool)
		}
		out[em.parent][em.relation] = true
	}
	return out
}
