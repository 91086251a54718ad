package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/internal/fixtures"
	"github.com/shrek82/jormx/logger"
	"github.com/shrek82/jormx/model"
)

func openTestDB(t *testing.T, opts *Options) *DB {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open("sqlite3", "file:"+name+"?mode=memory&cache=shared", opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(fixtures.Schema)
	require.NoError(t, err)
	_, err = db.Exec(fixtures.Seed)
	require.NoError(t, err)
	return db
}

func TestOpenUnknownDialect(t *testing.T) {
	_, err := Open("oracle", "whatever", nil)
	assert.ErrorIs(t, err, ErrUnknownDialect)
}

func TestFindReturnsManagedInstance(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()

	var ann *fixtures.Author
	require.NoError(t, db.Find(ctx, &ann, 1))
	assert.Equal(t, "Ann", ann.Name)
	assert.Equal(t, 1, ann.Loads)

	var again *fixtures.Author
	require.NoError(t, db.Find(ctx, &again, "1"))
	assert.Same(t, ann, again)
	assert.Equal(t, 1, again.Loads)

	m, err := model.GetModel(ann)
	require.NoError(t, err)
	assert.True(t, db.plans.Contains("entity:"+m.Name))
}

func TestFindNotFound(t *testing.T) {
	db := openTestDB(t, nil)

	var a *fixtures.Author
	err := db.Find(context.Background(), &a, 99)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, err, model.ErrEntityNotFound)
	assert.Nil(t, a)

	assert.ErrorIs(t, db.Find(context.Background(), a, 1), ErrInvalidQuery)
	assert.ErrorIs(t, db.Find(context.Background(), &a, 1, 2), ErrInvalidQuery)
}

func TestLazyCollectionLoadsOnAccess(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()

	var ann *fixtures.Author
	require.NoError(t, db.Find(ctx, &ann, 1))
	require.NotNil(t, ann.Books)
	assert.False(t, ann.Books.IsInitialized())
	assert.False(t, ann.Books.IsExtraLazy())

	books, err := ann.Books.All(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "First", books[0].Title)
	assert.Equal(t, "Second", books[1].Title)
	assert.True(t, ann.Books.IsInitialized())

	// members point back at the canonical owner
	assert.Same(t, ann, books[0].Author)

	var first *fixtures.Book
	require.NoError(t, db.Find(ctx, &first, 10))
	assert.Same(t, books[0], first)
}

func TestExtraLazyCollection(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()

	var book *fixtures.Book
	require.NoError(t, db.Find(ctx, &book, 10))
	tags := book.Tags
	require.NotNil(t, tags)
	assert.True(t, tags.IsExtraLazy())

	n, err := tags.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := tags.Slice(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "orm", page[0].Name)

	var orm *fixtures.Tag
	require.NoError(t, db.Find(ctx, &orm, 101))
	assert.Same(t, page[0], orm)

	ok, err := tags.Contains(ctx, orm)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, tags.IsInitialized())

	var second *fixtures.Book
	require.NoError(t, db.Find(ctx, &second, 11))
	var golang *fixtures.Tag
	require.NoError(t, db.Find(ctx, &golang, 100))
	ok, err = second.Tags.Contains(ctx, golang)
	require.NoError(t, err)
	assert.False(t, ok)

	// never persisted, so only pending elements can match it
	fresh := &fixtures.Tag{Name: "new"}
	ok, err = tags.Contains(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, ok)

	tags.Add(fresh)
	n, err = tags.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	ok, err = tags.Contains(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, ok)

	// a dirty slice loads the whole collection first
	all, err := tags.Slice(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, tags.IsInitialized())
	assert.Same(t, fresh, all[2])
}

func TestNativeQueryFetchJoin(t *testing.T) {
	db := openTestDB(t, nil)

	rsm := hydrate.NewMapping().
		AddEntityResult(&fixtures.Author{}, "a").
		AddAllFields("a", "a_").
		AddJoinedEntityResult(&fixtures.Book{}, "b", "a", "Books").
		AddAllFields("b", "b_")

	res, err := db.NativeQuery(rsm, `
		SELECT a.id AS a_id, a.name AS a_name,
			b.id AS b_id, b.title AS b_title, b.author_id AS b_author_id, b.shelf_id AS b_shelf_id
		FROM author a JOIN book b ON b.author_id = a.id
		ORDER BY a.id, b.id`).Result()
	require.NoError(t, err)

	authors := hydrate.Entities[*fixtures.Author](res)
	require.Len(t, authors, 2)
	ann, bob := authors[0], authors[1]
	assert.Equal(t, "Ann", ann.Name)
	assert.True(t, ann.Books.IsInitialized())
	assert.Equal(t, 2, ann.Books.Len())
	assert.Equal(t, 1, bob.Books.Len())
	assert.Same(t, bob, bob.Books.Values()[0].Author)

	// later lookups share the hydrated instances
	var again *fixtures.Author
	require.NoError(t, db.Find(context.Background(), &again, 2))
	assert.Same(t, bob, again)

	var list []*fixtures.Author
	require.NoError(t, db.NativeQuery(rsm, "SELECT id AS a_id, name AS a_name, NULL AS b_id, NULL AS b_title, NULL AS b_author_id, NULL AS b_shelf_id FROM author ORDER BY id").Find(&list))
	assert.Equal(t, []*fixtures.Author{ann, bob}, list)
}

func TestNativeQueryErrors(t *testing.T) {
	db := openTestDB(t, nil)

	_, err := db.NativeQuery(nil, "SELECT 1").Result()
	assert.ErrorIs(t, err, ErrInvalidQuery)

	rsm := hydrate.NewMapping().AddEntityResult(&fixtures.Tag{}, "t").AddAllFields("t", "")
	_, err = db.NativeQuery(rsm, "  ").Result()
	assert.ErrorIs(t, err, ErrInvalidSQL)

	_, err = db.NativeQuery(rsm, "SELECT * FROM nowhere").Result()
	assert.ErrorIs(t, err, ErrInvalidQuery)

	var wrong []*fixtures.Author
	err = db.NativeQuery(rsm, "SELECT id, name FROM tag").Find(&wrong)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestReferenceLoadsThroughPersister(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()

	p, err := db.Reference(ctx, &fixtures.Author{}, 2)
	require.NoError(t, err)
	assert.False(t, p.IsInitialized())
	bob := p.Target().(*fixtures.Author)
	assert.Equal(t, int64(2), bob.ID)
	assert.Empty(t, bob.Name)

	// Find on an uninitialized reference loads it in place
	var found *fixtures.Author
	require.NoError(t, db.Find(ctx, &found, 2))
	assert.Same(t, bob, found)
	assert.True(t, p.IsInitialized())
	assert.Equal(t, "Bob", bob.Name)
	assert.Equal(t, 1, bob.Loads)

	missing, err := db.Reference(ctx, &fixtures.Author{}, 99)
	require.NoError(t, err)
	assert.ErrorIs(t, missing.EnsureLoaded(), model.ErrEntityNotFound)
}

func TestToOneBecomesReference(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()

	var third *fixtures.Book
	require.NoError(t, db.Find(ctx, &third, 12))
	require.NotNil(t, third.Author)
	assert.Equal(t, int64(2), third.Author.ID)
	assert.Zero(t, third.ShelfID)

	p, ok := db.Proxies().ProxyOf(third.Author)
	require.True(t, ok)
	assert.False(t, p.IsInitialized())
	require.NoError(t, p.EnsureLoaded())
	assert.Equal(t, "Bob", third.Author.Name)
}

func TestTransaction(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := db.Transaction(func(tx *Tx) error {
		_, err := tx.Exec("UPDATE author SET name = ? WHERE id = ?", "Anna", 1)
		require.NoError(t, err)

		var ann *fixtures.Author
		require.NoError(t, tx.Find(ctx, &ann, 1))
		assert.Equal(t, "Anna", ann.Name)
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	rsm := hydrate.NewMapping().AddEntityResult(&fixtures.Author{}, "a").AddAllFields("a", "")
	res, err := db.NativeQuery(rsm, "SELECT id, name FROM author WHERE id = ?", 1).
		WithHint(hydrate.WithRefresh()).
		Result()
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, "Ann", res.At(0).(*fixtures.Author).Name)

	require.NoError(t, db.Transaction(func(tx *Tx) error {
		_, err := tx.Exec("UPDATE author SET name = ? WHERE id = ?", "Bobby", 2)
		return err
	}))
	var bob *fixtures.Author
	require.NoError(t, db.Find(ctx, &bob, 2))
	assert.Equal(t, "Bobby", bob.Name)
}

type recorder struct {
	statements []string
	shutdown   bool
}

func (r *recorder) Name() string      { return "recorder" }
func (r *recorder) Init(db *DB) error { return nil }
func (r *recorder) Shutdown() error   { r.shutdown = true; return nil }

func (r *recorder) Process(ctx context.Context, q *Query, next QueryFunc) (*hydrate.Result, error) {
	r.statements = append(r.statements, q.SQL())
	return next(ctx, q)
}

func TestMiddlewareSeesLazyLoads(t *testing.T) {
	db := openTestDB(t, nil)
	ctx := context.Background()
	rec := &recorder{}
	require.NoError(t, db.Use(rec))

	var ann *fixtures.Author
	require.NoError(t, db.Find(ctx, &ann, 1))
	_, err := ann.Books.All(ctx)
	require.NoError(t, err)

	require.Len(t, rec.statements, 2)
	assert.Contains(t, rec.statements[0], "FROM `author`")
	assert.Contains(t, rec.statements[1], "FROM `book` t")

	require.NoError(t, db.Close())
	assert.True(t, rec.shutdown)
}
