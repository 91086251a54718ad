package hydrate_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/jormx/collection"
	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/internal/fixtures"
	"github.com/shrek82/jormx/model"
	"github.com/shrek82/jormx/unitofwork"
)

func authorMapping() *hydrate.ResultSetMapping {
	return hydrate.NewMapping().
		AddEntityResult(&fixtures.Author{}, "a").
		AddFieldResult("a", "a_id", "ID").
		AddFieldResult("a", "a_name", "Name")
}

func booksMapping() *hydrate.ResultSetMapping {
	return authorMapping().
		AddJoinedEntityResult(&fixtures.Book{}, "b", "a", "Books").
		AddFieldResult("b", "b_id", "ID").
		AddFieldResult("b", "b_title", "Title")
}

func hydrateRows(t *testing.T, rsm *hydrate.ResultSetMapping, uow *unitofwork.UnitOfWork, rows []hydrate.Row, opts ...hydrate.Option) (*hydrate.Result, error) {
	t.Helper()
	h, err := hydrate.New(rsm, uow, opts...)
	require.NoError(t, err)
	return h.HydrateAll(context.Background(), hydrate.Rows(rows))
}

func TestDuplicateRootRowsYieldOneEntity(t *testing.T) {
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A"},
		{"a_id": int64(1), "a_name": "A"},
	}
	res, err := hydrateRows(t, authorMapping(), unitofwork.New(), rows)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())

	a := res.At(0).(*fixtures.Author)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, "A", a.Name)
}

func TestRootOrderFollowsFirstAppearance(t *testing.T) {
	rows := []hydrate.Row{
		{"a_id": int64(3), "a_name": "C"},
		{"a_id": int64(1), "a_name": "A"},
		{"a_id": int64(3), "a_name": "C"},
		{"a_id": int64(2), "a_name": "B"},
	}
	res, err := hydrateRows(t, authorMapping(), unitofwork.New(), rows)
	require.NoError(t, err)

	var ids []int64
	for _, a := range hydrate.Entities[*fixtures.Author](res) {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestIndexByOverwrites(t *testing.T) {
	rsm := authorMapping().AddIndexBy("a", "Name")
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "same"},
		{"a_id": int64(2), "a_name": "same"},
		{"a_id": int64(3), "a_name": "other"},
	}
	res, err := hydrateRows(t, rsm, unitofwork.New(), rows)
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())

	v, ok := res.Get("same")
	require.True(t, ok)
	assert.Equal(t, int64(2), v.(*fixtures.Author).ID)
	assert.Equal(t, []any{"same", "other"}, res.Keys())
}

func TestNullRootAppendsPlaceholder(t *testing.T) {
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A"},
		{"a_id": nil, "a_name": nil},
	}
	res, err := hydrateRows(t, authorMapping(), unitofwork.New(), rows)
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())
	assert.Nil(t, res.At(1))
}

func TestCollectionMembersAreDeduplicated(t *testing.T) {
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A", "b_id": int64(10), "b_title": "ten"},
		{"a_id": int64(1), "a_name": "A", "b_id": int64(11), "b_title": "eleven"},
		{"a_id": int64(1), "a_name": "A", "b_id": int64(10), "b_title": "ten"},
	}
	res, err := hydrateRows(t, booksMapping(), unitofwork.New(), rows)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())

	a := res.At(0).(*fixtures.Author)
	require.NotNil(t, a.Books)
	assert.True(t, a.Books.IsInitialized())
	books := a.Books.Values()
	require.Len(t, books, 2)
	assert.Equal(t, int64(10), books[0].ID)
	assert.Equal(t, int64(11), books[1].ID)
	assert.False(t, a.Books.IsDirty())
}

func TestCollectionIndexedByField(t *testing.T) {
	rsm := booksMapping().AddIndexBy("b", "Title")
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A", "b_id": int64(10), "b_title": "x"},
		{"a_id": int64(1), "a_name": "A", "b_id": int64(11), "b_title": "x"},
	}
	res, err := hydrateRows(t, rsm, unitofwork.New(), rows)
	require.NoError(t, err)

	a := res.At(0).(*fixtures.Author)
	require.Equal(t, 1, a.Books.Len())
	b, ok := a.Books.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(11), b.ID)
}

func TestOuterJoinMissLeavesEmptyCollection(t *testing.T) {
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A", "b_id": nil, "b_title": nil},
	}
	res, err := hydrateRows(t, booksMapping(), unitofwork.New(), rows)
	require.NoError(t, err)

	a := res.At(0).(*fixtures.Author)
	require.NotNil(t, a.Books)
	assert.True(t, a.Books.IsInitialized())
	assert.Equal(t, 0, a.Books.Len())
}

func TestExistingCollectionOnlyResolvesKnownMembers(t *testing.T) {
	uow := unitofwork.New()
	am, err := model.GetModel(&fixtures.Author{})
	require.NoError(t, err)
	bm, err := model.GetModel(&fixtures.Book{})
	require.NoError(t, err)

	b10 := &fixtures.Book{ID: 10, Title: "ten"}
	author := &fixtures.Author{ID: 1, Name: "A", Books: collection.New(b10)}
	uow.Register(am, model.ID(int64(1)), author)
	uow.Register(bm, model.ID(int64(10)), b10)

	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A", "b_id": int64(10), "b_title": "ten"},
		{"a_id": int64(1), "a_name": "A", "b_id": int64(11), "b_title": "eleven"},
	}
	res, err := hydrateRows(t, booksMapping(), uow, rows)
	require.NoError(t, err)

	assert.Same(t, author, res.At(0))
	assert.Equal(t, []*fixtures.Book{b10}, author.Books.Values())
}

func TestSliceCollection(t *testing.T) {
	rsm := hydrate.NewMapping().
		AddEntityResult(&fixtures.Shelf{}, "s").
		AddFieldResult("s", "s_id", "ID").
		AddFieldResult("s", "s_created_by", "CreatedBy").
		AddJoinedEntityResult(&fixtures.Book{}, "b", "s", "Books").
		AddFieldResult("b", "b_id", "ID")
	rows := []hydrate.Row{
		{"s_id": int64(1), "s_created_by": []byte("ops"), "b_id": int64(10)},
		{"s_id": int64(1), "s_created_by": []byte("ops"), "b_id": int64(11)},
		{"s_id": int64(1), "s_created_by": []byte("ops"), "b_id": int64(10)},
	}
	res, err := hydrateRows(t, rsm, unitofwork.New(), rows)
	require.NoError(t, err)

	s := res.At(0).(*fixtures.Shelf)
	assert.Equal(t, "ops", s.CreatedBy)
	require.Len(t, s.Books, 2)
	assert.Equal(t, int64(10), s.Books[0].ID)
	assert.Equal(t, int64(11), s.Books[1].ID)
}

func profileMapping() *hydrate.ResultSetMapping {
	return authorMapping().
		AddJoinedEntityResult(&fixtures.Profile{}, "p", "a", "Profile").
		AddFieldResult("p", "p_id", "ID").
		AddFieldResult("p", "p_bio", "Bio")
}

func TestSingleValuedNullClearsField(t *testing.T) {
	uow := unitofwork.New()
	am, err := model.GetModel(&fixtures.Author{})
	require.NoError(t, err)
	stale := &fixtures.Author{ID: 1, Name: "A", Profile: &fixtures.Profile{ID: 5}}
	uow.Register(am, model.ID(int64(1)), stale)

	rows := []hydrate.Row{{"a_id": int64(1), "a_name": "A", "p_id": nil, "p_bio": nil}}

	_, err = hydrateRows(t, profileMapping(), uow, rows)
	require.NoError(t, err)
	assert.NotNil(t, stale.Profile, "loaded association is kept without refresh")

	_, err = hydrateRows(t, profileMapping(), uow, rows, hydrate.WithRefresh())
	require.NoError(t, err)
	assert.Nil(t, stale.Profile)
}

func TestSingleValuedSetsInverseSide(t *testing.T) {
	rows := []hydrate.Row{{"a_id": int64(1), "a_name": "A", "p_id": int64(5), "p_bio": "bio"}}
	res, err := hydrateRows(t, profileMapping(), unitofwork.New(), rows)
	require.NoError(t, err)

	a := res.At(0).(*fixtures.Author)
	require.NotNil(t, a.Profile)
	assert.Equal(t, "bio", a.Profile.Bio)
	assert.Same(t, a, a.Profile.Author)
}

func TestOwningSideSetsInverseToOne(t *testing.T) {
	rsm := hydrate.NewMapping().
		AddEntityResult(&fixtures.Profile{}, "p").
		AddFieldResult("p", "p_id", "ID").
		AddJoinedEntityResult(&fixtures.Author{}, "a", "p", "Author").
		AddFieldResult("a", "a_id", "ID")
	rows := []hydrate.Row{{"p_id": int64(5), "a_id": int64(1)}}
	res, err := hydrateRows(t, rsm, unitofwork.New(), rows)
	require.NoError(t, err)

	p := res.At(0).(*fixtures.Profile)
	require.NotNil(t, p.Author)
	assert.Same(t, p, p.Author.Profile)
}

func TestMixedResultWithScalars(t *testing.T) {
	rsm := authorMapping().SetMixed(true).AddScalarResult("cnt", "books")
	rows := []hydrate.Row{
		{"a_id": int64(1), "a_name": "A", "cnt": int64(2)},
		{"a_id": int64(2), "a_name": "B", "cnt": int64(0)},
	}
	res, err := hydrateRows(t, rsm, unitofwork.New(), rows)
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())

	first := res.At(0).(hydrate.Mixed)
	assert.Equal(t, int64(1), first["a"].(*fixtures.Author).ID)
	assert.Equal(t, int64(2), first["books"])
	assert.Len(t, hydrate.Entities[*fixtures.Author](res), 2)
}

func TestMixedNullRoot(t *testing.T) {
	rsm := authorMapping().SetMixed(true)
	res, err := hydrateRows(t, rsm, unitofwork.New(), []hydrate.Row{{"a_id": nil}})
	require.NoError(t, err)
	assert.Equal(t, hydrate.Mixed{"a": nil}, res.At(0))
}

func TestScalarOnlyRows(t *testing.T) {
	rsm := hydrate.NewMapping().SetMixed(true).AddScalarResult("n", "n")
	res, err := hydrateRows(t, rsm, nil, []hydrate.Row{{"n": int64(1)}, {"n": int64(2)}})
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())
	assert.Equal(t, hydrate.Mixed{"n": int64(2)}, res.At(1))
}

func TestScalarsIndexedByColumn(t *testing.T) {
	rsm := hydrate.NewMapping().SetMixed(true).
		AddScalarResult("k", "key").
		AddScalarResult("v", "value").
		AddIndexByScalar("k")
	rows := []hydrate.Row{{"k": []byte("x"), "v": 1}, {"k": []byte("x"), "v": 2}}
	res, err := hydrateRows(t, rsm, nil, rows)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	v, ok := res.Get("x")
	require.True(t, ok)
	assert.Equal(t, 2, v.(hydrate.Mixed)["value"])
}

type summary struct {
	Name  string
	Books int64
}

func newSummary(args ...any) (any, error) {
	return summary{Name: args[0].(string), Books: args[1].(int64)}, nil
}

func TestSingleNewObjectReplacesSlot(t *testing.T) {
	rsm := hydrate.NewMapping().AddNewObjectResult("summary", newSummary, "name", "books")
	rows := []hydrate.Row{{"name": "A", "books": int64(2)}, {"name": []byte("B"), "books": int64(1)}}
	res, err := hydrateRows(t, rsm, nil, rows)
	require.NoError(t, err)
	assert.Equal(t, []any{summary{"A", 2}, summary{"B", 1}}, res.Values())
}

func TestNewObjectBesideEntity(t *testing.T) {
	rsm := authorMapping().SetMixed(true).
		AddScalarResult("cnt", "count").
		AddNewObjectResult("summary", newSummary, "a_name", "cnt")
	rows := []hydrate.Row{{"a_id": int64(1), "a_name": "A", "cnt": int64(3)}}
	res, err := hydrateRows(t, rsm, nil, rows)
	require.NoError(t, err)

	m := res.At(0).(hydrate.Mixed)
	assert.Equal(t, int64(3), m["count"])
	assert.Equal(t, summary{"A", 3}, m["summary"])
	assert.IsType(t, &fixtures.Author{}, m["a"])

	for range 20 {
		all := hydrate.Entities[any](res)
		require.Len(t, all, 3)
		assert.Same(t, m["a"], all[0])
		assert.Equal(t, int64(3), all[1])
		assert.Equal(t, summary{"A", 3}, all[2])
	}
}

func TestConfigurationErrors(t *testing.T) {
	cases := map[string]*hydrate.ResultSetMapping{
		"scalar without mixed": authorMapping().AddScalarResult("cnt", "count"),
		"two roots without mixed": authorMapping().
			AddEntityResult(&fixtures.Tag{}, "t").
			AddFieldResult("t", "t_id", "ID"),
		"new object beside entity": authorMapping().AddNewObjectResult("s", newSummary, "a_name"),
		"identifier not selected": hydrate.NewMapping().
			AddEntityResult(&fixtures.Author{}, "a").
			AddFieldResult("a", "a_name", "Name"),
		"duplicate alias":    authorMapping().AddEntityResult(&fixtures.Tag{}, "a"),
		"unknown parent":     authorMapping().AddJoinedEntityResult(&fixtures.Book{}, "b", "x", "Books"),
		"unknown relation":   authorMapping().AddJoinedEntityResult(&fixtures.Book{}, "b", "a", "Nope").AddFieldResult("b", "b_id", "ID"),
		"index-by unselected": authorMapping().AddIndexBy("a", "Nick"),
	}
	for name, rsm := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := hydrate.New(rsm, nil)
			assert.ErrorIs(t, err, model.ErrConfiguration)
		})
	}
}

func TestCardinalityMismatchAbortsRun(t *testing.T) {
	rsm := booksMapping().ExpectCollection("b", false)
	h, err := hydrate.New(rsm, nil)
	require.NoError(t, err)

	run := h.Begin(context.Background())
	err = run.ProcessRow(hydrate.Row{"a_id": int64(1), "a_name": "A", "b_id": int64(10)})
	require.ErrorIs(t, err, model.ErrMappingInconsistency)

	var me *model.MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "Books", me.Relation)

	assert.ErrorIs(t, run.ProcessRow(hydrate.Row{"a_id": int64(2)}), model.ErrMappingInconsistency)
	res, err := run.Finish()
	assert.Nil(t, res)
	assert.Error(t, err)
}

func TestRowSourceErrorAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	rows := iter.Seq2[hydrate.Row, error](func(yield func(hydrate.Row, error) bool) {
		if !yield(hydrate.Row{"a_id": int64(1)}, nil) {
			return
		}
		yield(nil, boom)
	})
	h, err := hydrate.New(authorMapping(), nil)
	require.NoError(t, err)
	res, err := h.HydrateAll(context.Background(), rows)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestIdentityIsSharedAcrossRuns(t *testing.T) {
	uow := unitofwork.New()
	rows := []hydrate.Row{{"a_id": int64(1), "a_name": "A"}}
	first, err := hydrateRows(t, authorMapping(), uow, rows)
	require.NoError(t, err)
	second, err := hydrateRows(t, authorMapping(), uow, []hydrate.Row{{"a_id": int64(1), "a_name": "changed"}})
	require.NoError(t, err)

	a := first.At(0).(*fixtures.Author)
	assert.Same(t, a, second.At(0))
	assert.Equal(t, "A", a.Name, "managed state wins without refresh")

	_, err = hydrateRows(t, authorMapping(), uow, []hydrate.Row{{"a_id": int64(1), "a_name": "changed"}}, hydrate.WithRefresh())
	require.NoError(t, err)
	assert.Equal(t, "changed", a.Name)
}

func TestDetachedInstancesAreNotManaged(t *testing.T) {
	uow := unitofwork.New()
	res, err := hydrateRows(t, authorMapping(), uow, []hydrate.Row{{"a_id": int64(1)}, {"a_id": int64(1)}}, hydrate.WithDetached())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())
	assert.Equal(t, 0, uow.Len())
}

func TestTargetIsFilledInPlace(t *testing.T) {
	target := &fixtures.Author{}
	res, err := hydrateRows(t, authorMapping(), nil, []hydrate.Row{{"a_id": int64(7), "a_name": "G"}}, hydrate.WithTarget(target))
	require.NoError(t, err)
	assert.Same(t, target, res.At(0))
	assert.Equal(t, "G", target.Name)
	assert.Equal(t, 1, target.Loads)
}

func TestRootsFedIntoCollection(t *testing.T) {
	into := collection.New[*fixtures.Author]()
	_, err := hydrateRows(t, authorMapping(), nil,
		[]hydrate.Row{{"a_id": int64(1)}, {"a_id": int64(2)}, {"a_id": int64(1)}},
		hydrate.WithCollection(into))
	require.NoError(t, err)
	assert.Equal(t, 2, into.Len())
}

type Pet struct {
	ID   int64 `jorm:"pk"`
	Name string
}

type Dog struct {
	ID   int64 `jorm:"pk"`
	Name string
	Toys []*Toy `jorm:"has_many fk:dog_id"`
}

type Toy struct {
	ID    int64 `jorm:"pk"`
	Name  string
	DogID int64
}

type Cat struct {
	ID   int64 `jorm:"pk"`
	Name string
}

func TestDiscriminatorPicksConcreteType(t *testing.T) {
	rsm := hydrate.NewMapping().
		AddEntityResult(&Pet{}, "p").
		AddFieldResult("p", "p_id", "ID").
		AddFieldResult("p", "p_name", "Name").
		SetDiscriminatorColumn("p", "kind").
		AddDiscriminatorValue("p", "dog", &Dog{}).
		AddDiscriminatorValue("p", "cat", &Cat{})
	rows := []hydrate.Row{
		{"p_id": int64(1), "p_name": "rex", "kind": "dog"},
		{"p_id": int64(2), "p_name": "tom", "kind": []byte("cat")},
		{"p_id": int64(3), "p_name": "?", "kind": nil},
	}
	res, err := hydrateRows(t, rsm, nil, rows)
	require.NoError(t, err)
	require.Equal(t, 3, res.Len())
	assert.Equal(t, "rex", res.At(0).(*Dog).Name)
	assert.Equal(t, "tom", res.At(1).(*Cat).Name)
	assert.IsType(t, &Pet{}, res.At(2))

	_, err = hydrateRows(t, rsm, nil, []hydrate.Row{{"p_id": int64(4), "kind": "fish"}})
	assert.ErrorIs(t, err, model.ErrMappingInconsistency)
}

func petsWithToys() *hydrate.ResultSetMapping {
	return hydrate.NewMapping().
		AddEntityResult(&Pet{}, "p").
		AddFieldResult("p", "p_id", "ID").
		SetDiscriminatorColumn("p", "kind").
		AddDiscriminatorValue("p", "dog", &Dog{}).
		AddDiscriminatorValue("p", "cat", &Cat{}).
		AddJoinedEntityResult(&Toy{}, "t", "p", "Toys").
		AddFieldResult("t", "t_id", "ID").
		AddFieldResult("t", "t_name", "Name")
}

func TestJoinDeclaredOnOneSubtype(t *testing.T) {
	rows := []hydrate.Row{
		{"p_id": int64(1), "kind": "dog", "t_id": int64(9), "t_name": "ball"},
		{"p_id": int64(1), "kind": "dog", "t_id": int64(10), "t_name": "rope"},
		{"p_id": int64(2), "kind": "cat", "t_id": nil, "t_name": nil},
	}
	res, err := hydrateRows(t, petsWithToys(), nil, rows)
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())
	dog := res.At(0).(*Dog)
	require.Len(t, dog.Toys, 2)
	assert.Equal(t, "rope", dog.Toys[1].Name)
	assert.IsType(t, &Cat{}, res.At(1))

	// a cat row carrying toy columns cannot be placed anywhere
	_, err = hydrateRows(t, petsWithToys(), nil, []hydrate.Row{
		{"p_id": int64(3), "kind": "cat", "t_id": int64(11), "t_name": "yarn"},
	})
	assert.ErrorIs(t, err, model.ErrMappingInconsistency)
}

func TestJoinDeclaredOnNoSubtype(t *testing.T) {
	rsm := hydrate.NewMapping().
		AddEntityResult(&Pet{}, "p").
		AddFieldResult("p", "p_id", "ID").
		SetDiscriminatorColumn("p", "kind").
		AddDiscriminatorValue("p", "cat", &Cat{}).
		AddJoinedEntityResult(&Toy{}, "t", "p", "Toys").
		AddFieldResult("t", "t_id", "ID")
	_, err := hydrate.New(rsm, nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
