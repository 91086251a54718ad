package model

import (
	"fmt"
	"reflect"
	"unicode"

	"github.com/puzpuzpuz/xsync/v3"
)

// Model is the resolved persistence metadata of one concrete entity type.
// Embedded structs are flattened into it, so hydration and proxy generation
// never walk the embedding chain again.
type Model struct {
	Name        string // import path qualified type name
	TableName   string
	Type        reflect.Type
	Fields      []*Field          // persistent columns, in declaration order
	FieldMap    map[string]*Field // column -> field
	NameMap     map[string]*Field // field name -> field, transient fields included
	Identifiers []*Field
	PKField     *Field // first identifier
	Relations   []*Relation
	RelationMap map[string]*Relation
	Transient   []*Field

	HasPostLoad         bool
	HasBeforeSerialize  bool
	HasAfterDeserialize bool
}

var modelCache = xsync.NewMapOf[string, *Model]()

// GetModel returns the model metadata for a given value
func GetModel(value any) (*Model, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: value is nil", ErrInvalidModel)
	}
	if m, ok := value.(*Model); ok {
		return m, nil
	}
	if t, ok := value.(reflect.Type); ok {
		return ModelOf(t)
	}
	return ModelOf(reflect.TypeOf(value))
}

// ModelOf returns the model metadata for a struct type (or pointer, slice of).
func ModelOf(typ reflect.Type) (*Model, error) {
	for typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: value must be a struct or pointer to struct, got %s", ErrInvalidModel, typ.Kind())
	}

	key := TypeName(typ)
	if cached, ok := modelCache.Load(key); ok {
		return cached, nil
	}

	m, err := parseModel(typ)
	if err != nil {
		return nil, err
	}

	actual, _ := modelCache.LoadOrStore(key, m)
	return actual, nil
}

// Lookup returns an already parsed model by its qualified name.
func Lookup(name string) (*Model, bool) {
	return modelCache.Load(name)
}

// TypeName returns the import path qualified name of a struct type.
func TypeName(typ reflect.Type) string {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.PkgPath() == "" {
		return typ.Name()
	}
	return typ.PkgPath() + "." + typ.Name()
}

func parseModel(typ reflect.Type) (*Model, error) {
	m := &Model{
		Name:        TypeName(typ),
		TableName:   camelToSnake(typ.Name()),
		Type:        typ,
		FieldMap:    make(map[string]*Field),
		NameMap:     make(map[string]*Field),
		RelationMap: make(map[string]*Relation),
	}

	if err := m.collect(typ, nil); err != nil {
		return nil, err
	}
	if len(m.Identifiers) == 0 {
		if f, ok := m.NameMap["ID"]; ok && !f.Transient {
			f.IsPK = true
			m.Identifiers = append(m.Identifiers, f)
		}
	}
	if len(m.Identifiers) == 0 {
		return nil, fmt.Errorf("%w: %s has no identifier field", ErrInvalidModel, m.Name)
	}
	m.PKField = m.Identifiers[0]

	ptr := reflect.PointerTo(typ)
	m.HasPostLoad = ptr.Implements(postLoaderType)
	m.HasBeforeSerialize = ptr.Implements(beforeSerializerType)
	m.HasAfterDeserialize = ptr.Implements(afterDeserializerType)
	return m, nil
}

// collect walks the struct, flattening anonymous struct fields. Outer
// declarations shadow promoted ones, as Go selectors do.
func (m *Model) collect(typ reflect.Type, parent []int) error {
	var embedded []reflect.StructField
	for i := 0; i < typ.NumField(); i++ {
		structField := typ.Field(i)
		index := append(append([]int(nil), parent...), i)

		if structField.Anonymous && structField.Type.Kind() == reflect.Struct && structField.Tag.Get("jorm") == "" {
			structField.Index = index
			embedded = append(embedded, structField)
			continue
		}
		if !structField.IsExported() {
			continue
		}
		if _, taken := m.NameMap[structField.Name]; taken {
			continue
		}
		if _, taken := m.RelationMap[structField.Name]; taken {
			continue
		}

		tagStr := structField.Tag.Get("jorm")
		tag := ParseTag(tagStr)

		if tag.RelationType != "" {
			rel, err := newRelation(typ, structField, index, tag)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", m.Name, structField.Name, err)
			}
			m.Relations = append(m.Relations, rel)
			m.RelationMap[rel.Name] = rel
			continue
		}

		columnName := tag.Column
		if columnName == "" {
			columnName = camelToSnake(structField.Name)
		}

		field := &Field{
			Name:      structField.Name,
			Column:    columnName,
			Type:      structField.Type,
			Index:     index,
			IsPK:      tag.PrimaryKey,
			Transient: tag.Ignore,
			Getter:    tag.Getter,
			Tag:       tagStr,
		}
		m.NameMap[field.Name] = field

		if field.Transient {
			m.Transient = append(m.Transient, field)
			continue
		}
		m.Fields = append(m.Fields, field)
		m.FieldMap[columnName] = field
		if field.IsPK {
			m.Identifiers = append(m.Identifiers, field)
		}
	}

	for _, sf := range embedded {
		if err := m.collect(sf.Type, sf.Index); err != nil {
			return err
		}
	}
	return nil
}

// New allocates a zero entity and returns a pointer to it.
func (m *Model) New() any {
	return reflect.New(m.Type).Interface()
}

// Field returns the persistent or transient field with the given name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.NameMap[name]
	return f, ok
}

// Relation returns the association named name.
func (m *Model) Relation(name string) (*Relation, error) {
	rel, ok := m.RelationMap[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrRelationNotFound, m.Name, name)
	}
	return rel, nil
}

// ColumnOf resolves name to a column: a field name maps to its column,
// anything else is taken as a column already.
func (m *Model) ColumnOf(name string) string {
	if f, ok := m.NameMap[name]; ok && !f.Transient {
		return f.Column
	}
	return name
}

// IsIdentifier reports whether name is one of the identifier fields.
func (m *Model) IsIdentifier(name string) bool {
	for _, f := range m.Identifiers {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Identifier reads the identifier tuple of entity.
func (m *Model) Identifier(entity any) Identifier {
	v := m.indirect(entity)
	if !v.IsValid() {
		return nil
	}
	id := make(Identifier, len(m.Identifiers))
	for i, f := range m.Identifiers {
		id[i] = v.FieldByIndex(f.Index).Interface()
	}
	return id
}

// SetIdentifier writes id into the identifier fields of entity.
func (m *Model) SetIdentifier(entity any, id Identifier) error {
	if len(id) != len(m.Identifiers) {
		return fmt.Errorf("%w: %s expects %d identifier values, got %d", ErrInvalidModel, m.Name, len(m.Identifiers), len(id))
	}
	v := m.indirect(entity)
	if !v.IsValid() {
		return fmt.Errorf("%w: %s entity is nil", ErrInvalidModel, m.Name)
	}
	for i, f := range m.Identifiers {
		if err := Assign(v.FieldByIndex(f.Index), id[i]); err != nil {
			return fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
	}
	return nil
}

// SetFieldValue converts raw and stores it into the named field of entity.
func (m *Model) SetFieldValue(entity any, name string, raw any) error {
	f, ok := m.NameMap[name]
	if !ok {
		return fmt.Errorf("%w: %s has no field %s", ErrInvalidModel, m.Name, name)
	}
	v := m.indirect(entity)
	if !v.IsValid() {
		return fmt.Errorf("%w: %s entity is nil", ErrInvalidModel, m.Name)
	}
	if err := Assign(v.FieldByIndex(f.Index), raw); err != nil {
		return fmt.Errorf("%s.%s: %w", m.Name, name, err)
	}
	return nil
}

// FieldValue returns the value of the named field or association of entity.
func (m *Model) FieldValue(entity any, name string) (any, bool) {
	v := m.indirect(entity)
	if !v.IsValid() {
		return nil, false
	}
	if f, ok := m.NameMap[name]; ok {
		return v.FieldByIndex(f.Index).Interface(), true
	}
	if rel, ok := m.RelationMap[name]; ok {
		return v.FieldByIndex(rel.Index).Interface(), true
	}
	return nil, false
}

// Value returns the addressable struct value behind entity.
func (m *Model) Value(entity any) reflect.Value {
	return m.indirect(entity)
}

func (m *Model) indirect(entity any) reflect.Value {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}
	}
	v = v.Elem()
	if v.Type() != m.Type {
		return reflect.Value{}
	}
	return v
}

// CopyState copies every persistent field and association from src to dst.
// Transient fields are left untouched.
func (m *Model) CopyState(dst, src any) error {
	d, s := m.indirect(dst), m.indirect(src)
	if !d.IsValid() || !s.IsValid() {
		return fmt.Errorf("%w: cannot copy state between %T and %T", ErrInvalidModel, dst, src)
	}
	for _, f := range m.Fields {
		d.FieldByIndex(f.Index).Set(s.FieldByIndex(f.Index))
	}
	for _, rel := range m.Relations {
		d.FieldByIndex(rel.Index).Set(s.FieldByIndex(rel.Index))
	}
	return nil
}

func camelToSnake(s string) string {
	if s == "ID" {
		return "id"
	}
	var res []rune
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rune(s[i-1])) || (i+1 < len(s) && unicode.IsLower(rune(s[i+1])))) {
				res = append(res, '_')
			}
			res = append(res, unicode.ToLower(r))
		} else {
			res = append(res, r)
		}
	}
	return string(res)
}
