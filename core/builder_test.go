package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shrek82/jormx/dialect"
)

func TestBuilderBuild(t *testing.T) {
	d, _ := dialect.Get("postgres")
	b := NewBuilder(d)
	defer PutBuilder(b)

	sql, args := b.SetTable("tag").Alias("t").
		Select(`t."id"`, `t."name"`).
		Joins("JOIN book_tag j ON j.tag_id = t.id").
		Where("j.book_id = ?", 10).
		Where("t.name <> ?", "draft").
		OrderBy(`t."id"`).
		Build()

	assert.Equal(t, `SELECT t."id", t."name" FROM "tag" t JOIN book_tag j ON j.tag_id = t.id WHERE (j.book_id = $1) AND (t.name <> $2) ORDER BY t."id"`, sql)
	assert.Equal(t, []any{10, "draft"}, args)
}

func TestBuilderDefaultsAndReuse(t *testing.T) {
	d, _ := dialect.Get("sqlite3")
	b := NewBuilder(d)
	b.SetTable("author").Where("id = ?", 1)
	PutBuilder(b)

	b = NewBuilder(d)
	defer PutBuilder(b)
	sql, args := b.SetTable("book").Build()
	assert.Equal(t, "SELECT * FROM `book`", sql)
	assert.Empty(t, args)
}

func TestBuilderRejectsUnsafeJoin(t *testing.T) {
	d, _ := dialect.Get("sqlite3")
	b := NewBuilder(d)
	defer PutBuilder(b)
	assert.Panics(t, func() { b.Joins("JOIN x ON 1=1; DROP TABLE book") })
	assert.Panics(t, func() { b.Joins("book_tag j") })
}
