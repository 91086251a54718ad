package hydrate

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shrek82/jormx/model"
)

// MappingDoc is the YAML form of a ResultSetMapping.
type MappingDoc struct {
	Mixed         bool              `yaml:"mixed,omitempty"`
	Entities      []EntityDoc       `yaml:"entities"`
	Scalars       map[string]string `yaml:"scalars,omitempty"` // column -> name
	IndexByScalar string            `yaml:"index_by_scalar,omitempty"`
}

type EntityDoc struct {
	Alias         string            `yaml:"alias"`
	Entity        string            `yaml:"entity"`
	Result        string            `yaml:"result,omitempty"`
	Parent        string            `yaml:"parent,omitempty"`
	Relation      string            `yaml:"relation,omitempty"`
	Collection    *bool             `yaml:"collection,omitempty"`
	Prefix        *string           `yaml:"prefix,omitempty"`  // map every field as prefix+column
	Columns       map[string]string `yaml:"columns,omitempty"` // column -> field
	Meta          map[string]string `yaml:"meta,omitempty"`    // column -> relation
	IndexBy       string            `yaml:"index_by,omitempty"`
	Discriminator *DiscriminatorDoc `yaml:"discriminator,omitempty"`
}

type DiscriminatorDoc struct {
	Column string            `yaml:"column"`
	Values map[string]string `yaml:"values"` // value -> entity name
}

// LoadMapping reads a YAML mapping. Entity names are resolved through
// entities, whose values are anything GetModel accepts.
func LoadMapping(r io.Reader, entities map[string]any) (*ResultSetMapping, error) {
	var doc MappingDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode mapping: %v", model.ErrConfiguration, err)
	}
	return doc.Build(entities)
}

// Build turns the document into a validated ResultSetMapping.
func (doc *MappingDoc) Build(entities map[string]any) (*ResultSetMapping, error) {
	resolve := func(name string) (any, error) {
		e, ok := entities[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown entity %q", model.ErrConfiguration, name)
		}
		return e, nil
	}

	rsm := NewMapping().SetMixed(doc.Mixed)
	for _, ed := range doc.Entities {
		e, err := resolve(ed.Entity)
		if err != nil {
			return nil, err
		}
		if ed.Parent == "" {
			if ed.Result != "" {
				rsm.AddEntityResult(e, ed.Alias, ed.Result)
			} else {
				rsm.AddEntityResult(e, ed.Alias)
			}
		} else {
			rsm.AddJoinedEntityResult(e, ed.Alias, ed.Parent, ed.Relation)
		}
		if ed.Collection != nil {
			rsm.ExpectCollection(ed.Alias, *ed.Collection)
		}
		if ed.Prefix != nil {
			rsm.AddAllFields(ed.Alias, *ed.Prefix)
		}
		for _, col := range sortedKeys(ed.Columns) {
			rsm.AddFieldResult(ed.Alias, col, ed.Columns[col])
		}
		for _, col := range sortedKeys(ed.Meta) {
			rsm.AddMetaResult(ed.Alias, col, ed.Meta[col])
		}
		if ed.IndexBy != "" {
			rsm.AddIndexBy(ed.Alias, ed.IndexBy)
		}
		if d := ed.Discriminator; d != nil {
			rsm.SetDiscriminatorColumn(ed.Alias, d.Column)
			for _, value := range sortedKeys(d.Values) {
				sub, err := resolve(d.Values[value])
				if err != nil {
					return nil, err
				}
				rsm.AddDiscriminatorValue(ed.Alias, value, sub)
			}
		}
	}
	for _, col := range sortedKeys(doc.Scalars) {
		rsm.AddScalarResult(col, doc.Scalars[col])
	}
	if doc.IndexByScalar != "" {
		rsm.AddIndexByScalar(doc.IndexByScalar)
	}
	if err := rsm.Validate(); err != nil {
		return nil, err
	}
	return rsm, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
