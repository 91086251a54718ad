package model_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/jormx/internal/fixtures"
	"github.com/shrek82/jormx/model"
)

func TestGetModelAuthor(t *testing.T) {
	m, err := model.GetModel(&fixtures.Author{})
	require.NoError(t, err)

	assert.Equal(t, "github.com/shrek82/jormx/internal/fixtures.Author", m.Name)
	assert.Equal(t, "author", m.TableName)
	require.NotNil(t, m.PKField)
	assert.Equal(t, "ID", m.PKField.Name)
	assert.Equal(t, "GetID", m.PKField.Getter)
	assert.True(t, m.HasPostLoad)

	var transient []string
	for _, f := range m.Transient {
		transient = append(transient, f.Name)
	}
	assert.Equal(t, []string{"Nick", "Loads"}, transient)

	books, err := m.Relation("Books")
	require.NoError(t, err)
	assert.Equal(t, model.RelationHasMany, books.Type)
	assert.Equal(t, model.KindCollection, books.Kind)
	assert.Equal(t, reflect.TypeOf(fixtures.Book{}), books.Target)
	assert.Equal(t, "Author", books.MappedBy)
	assert.False(t, books.IsOwningSide())

	_, err = m.Relation("Missing")
	assert.ErrorIs(t, err, model.ErrRelationNotFound)

	// cached by qualified name
	same, err := model.ModelOf(reflect.TypeOf([]*fixtures.Author{}))
	require.NoError(t, err)
	assert.Same(t, m, same)
}

func TestRelationsOfBook(t *testing.T) {
	m, err := model.GetModel(fixtures.Book{})
	require.NoError(t, err)

	tags, err := m.Relation("Tags")
	require.NoError(t, err)
	assert.Equal(t, model.RelationManyToMany, tags.Type)
	assert.Equal(t, "book_tag", tags.JoinTable)
	assert.Equal(t, "book_id", tags.JoinFK)
	assert.Equal(t, "tag_id", tags.JoinRef)
	assert.True(t, tags.ExtraLazy)
	assert.True(t, tags.ShapeMatches())

	author, err := m.Relation("Author")
	require.NoError(t, err)
	assert.Equal(t, model.RelationBelongsTo, author.Type)
	assert.Equal(t, "author_id", m.ColumnOf(author.ForeignKey))
	assert.Equal(t, "title", m.ColumnOf("Title"))
}

func TestEmbeddedFieldsFlatten(t *testing.T) {
	m, err := model.GetModel(&fixtures.Shelf{})
	require.NoError(t, err)

	f, ok := m.FieldMap["created_by"]
	require.True(t, ok)
	assert.Equal(t, "CreatedBy", f.Name)

	books, err := m.Relation("Books")
	require.NoError(t, err)
	assert.Equal(t, model.KindSlice, books.Kind)
}

func TestIdentifierRoundTrip(t *testing.T) {
	m, err := model.GetModel(&fixtures.Author{})
	require.NoError(t, err)

	a := m.New()
	require.NoError(t, m.SetIdentifier(a, model.ID("7")))
	assert.Equal(t, int64(7), a.(*fixtures.Author).ID)
	assert.Equal(t, model.ID(int64(7)).Key(), m.Identifier(a).Key())

	assert.ErrorIs(t, m.SetIdentifier(a, model.ID(1, 2)), model.ErrInvalidModel)

	require.NoError(t, m.SetFieldValue(a, "Name", []byte("Ann")))
	v, ok := m.FieldValue(a, "Name")
	require.True(t, ok)
	assert.Equal(t, "Ann", v)
}

func TestIdentifierKey(t *testing.T) {
	assert.Equal(t, model.ID(int64(1)).Key(), model.ID("1").Key())
	assert.NotEqual(t, model.ID(1, 2).Key(), model.ID(12).Key())
	assert.True(t, model.ID(nil).IsNull())
	assert.True(t, model.ID(0).IsZero())
	assert.False(t, model.ID(3).IsZero())
	assert.Equal(t, "(1, 2)", model.ID(1, 2).String())
}

func TestParseTag(t *testing.T) {
	tag := model.ParseTag("pk auto;getter:GetID")
	assert.True(t, tag.PrimaryKey)
	assert.Equal(t, "GetID", tag.Getter)

	// DDL hints are accepted and ignored
	tag = model.ParseTag("column:title size:abc notnull unique default:'' type:varchar(20)")
	assert.Equal(t, "title", tag.Column)
	assert.Empty(t, tag.RelationType)
	assert.False(t, tag.PrimaryKey)

	tag = model.ParseTag("belongs_to fk:author_id")
	assert.Equal(t, "belongs_to", tag.RelationType)
	assert.Equal(t, "author_id", tag.ForeignKey)

	tag = model.ParseTag("many_to_many:book_tag join_fk:book_id fetch:extra_lazy")
	assert.Equal(t, "many_to_many", tag.RelationType)
	assert.Equal(t, "book_tag", tag.JoinTable)
	assert.Equal(t, "extra_lazy", tag.Fetch)

	assert.True(t, model.ParseTag("-").Ignore)
}
