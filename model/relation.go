package model

import (
	"fmt"
	"reflect"
)

type RelationType int

const (
	RelationHasMany RelationType = iota
	RelationBelongsTo
	RelationHasOne
	RelationManyToMany
)

func (t RelationType) String() string {
	switch t {
	case RelationHasMany:
		return "has_many"
	case RelationBelongsTo:
		return "belongs_to"
	case RelationHasOne:
		return "has_one"
	case RelationManyToMany:
		return "many_to_many"
	}
	return fmt.Sprintf("RelationType(%d)", int(t))
}

// FieldKind is the Go shape of an association field.
type FieldKind int

const (
	KindPointer    FieldKind = iota // *T
	KindSlice                       // []*T
	KindCollection                  // *collection.Collection[*T]
)

// Collectable is implemented by collection types usable as to-many fields.
// ElemType must not dereference its receiver.
type Collectable interface {
	ElemType() reflect.Type
}

var collectableType = reflect.TypeOf((*Collectable)(nil)).Elem()

type Relation struct {
	Name       string       // 关联名称（字段名）
	Type       RelationType // 关联类型
	Kind       FieldKind    // 字段形态
	FieldType  reflect.Type // 字段的 Go 类型
	Target     reflect.Type // 关联实体的结构体类型
	Index      []int        // 字段索引路径
	ForeignKey string       // 外键字段名
	References string       // 引用字段名
	JoinTable  string       // 多对多中间表名
	JoinFK     string       // 中间表外键（指向主表）
	JoinRef    string       // 中间表引用键（指向关联表）
	MappedBy   string       // 反向端：对端持有关系的字段
	InversedBy string       // 拥有端：对端的反向字段
	ExtraLazy  bool         // count/slice/contains 不初始化集合
}

// IsCollection reports whether the metadata declares a to-many association.
func (r *Relation) IsCollection() bool {
	return r.Type == RelationHasMany || r.Type == RelationManyToMany
}

// IsOwningSide reports whether this side holds the foreign key or join table.
func (r *Relation) IsOwningSide() bool {
	return r.MappedBy == ""
}

// ShapeMatches reports whether the Go field shape agrees with the declared
// cardinality.
func (r *Relation) ShapeMatches() bool {
	if r.IsCollection() {
		return r.Kind == KindSlice || r.Kind == KindCollection
	}
	return r.Kind == KindPointer
}

// TargetModel resolves the metadata of the associated entity.
func (r *Relation) TargetModel() (*Model, error) {
	return ModelOf(r.Target)
}

func newRelation(owner reflect.Type, field reflect.StructField, index []int, tag *Tag) (*Relation, error) {
	relationType, err := parseRelationType(tag.RelationType)
	if err != nil {
		return nil, err
	}

	relation := &Relation{
		Name:       field.Name,
		Type:       relationType,
		FieldType:  field.Type,
		Index:      index,
		MappedBy:   tag.MappedBy,
		InversedBy: tag.InversedBy,
		ExtraLazy:  tag.Fetch == "extra_lazy",
	}

	switch {
	case field.Type.Implements(collectableType) && field.Type.Kind() == reflect.Ptr:
		relation.Kind = KindCollection
		relation.Target = reflect.Zero(field.Type).Interface().(Collectable).ElemType()
	case field.Type.Kind() == reflect.Slice:
		relation.Kind = KindSlice
		relation.Target = field.Type.Elem()
	case field.Type.Kind() == reflect.Ptr:
		relation.Kind = KindPointer
		relation.Target = field.Type
	default:
		return nil, fmt.Errorf("%w: association field must be a pointer, slice or collection, got %s", ErrInvalidModel, field.Type)
	}
	for relation.Target.Kind() == reflect.Ptr {
		relation.Target = relation.Target.Elem()
	}
	if relation.Target.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: association target must be a struct, got %s", ErrInvalidModel, relation.Target)
	}

	switch relationType {
	case RelationHasMany, RelationHasOne:
		if tag.ForeignKey == "" {
			tag.ForeignKey = camelToSnake(owner.Name()) + "_id"
		}
		relation.ForeignKey = tag.ForeignKey
		if tag.References == "" {
			relation.References = "id"
		} else {
			relation.References = tag.References
		}

	case RelationBelongsTo:
		if tag.ForeignKey == "" {
			tag.ForeignKey = camelToSnake(field.Name) + "_id"
		}
		relation.ForeignKey = tag.ForeignKey
		if tag.References == "" {
			relation.References = "id"
		} else {
			relation.References = tag.References
		}

	case RelationManyToMany:
		if tag.JoinTable == "" {
			return nil, fmt.Errorf("%w: many_to_many relation requires join_table tag", ErrInvalidModel)
		}
		relation.JoinTable = tag.JoinTable

		if tag.JoinFK == "" {
			tag.JoinFK = camelToSnake(owner.Name()) + "_id"
		}
		relation.JoinFK = tag.JoinFK

		if tag.JoinRef == "" {
			relation.JoinRef = camelToSnake(relation.Target.Name()) + "_id"
		} else {
			relation.JoinRef = tag.JoinRef
		}
		if tag.References == "" {
			relation.References = "id"
		} else {
			relation.References = tag.References
		}
	}

	return relation, nil
}

func parseRelationType(s string) (RelationType, error) {
	switch s {
	case "has_many":
		return RelationHasMany, nil
	case "belongs_to":
		return RelationBelongsTo, nil
	case "has_one":
		return RelationHasOne, nil
	case "many_to_many", "many2many":
		return RelationManyToMany, nil
	}
	return 0, fmt.Errorf("%w: unknown relation type %q", ErrInvalidModel, s)
}
