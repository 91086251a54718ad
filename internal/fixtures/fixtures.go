// Package fixtures holds the entities shared by the package tests: an
// author with lazy books and a profile, books with extra-lazy tags, and
// shelves holding plain slices.
package fixtures

import (
	"errors"

	"github.com/shrek82/jormx/collection"
)

type Author struct {
	ID      int64                         `jorm:"pk auto getter:GetID"`
	Name    string                        `jorm:"size:100"`
	Nick    string                        `jorm:"-"`
	Loads   int                           `jorm:"-"`
	Books   *collection.Collection[*Book] `jorm:"has_many fk:author_id mapped_by:Author"`
	Profile *Profile                      `jorm:"has_one fk:author_id mapped_by:Author"`
}

func (a *Author) GetID() int64 { return a.ID }

func (a *Author) Greeting(prefix string) string {
	return prefix + " " + a.Name
}

func (a *Author) Rename(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	a.Name = name
	return nil
}

func (a *Author) PostLoad() error {
	a.Loads++
	return nil
}

type Book struct {
	ID       int64                        `jorm:"pk auto"`
	Title    string                       `jorm:"size:200"`
	AuthorID int64                        `jorm:"column:author_id"`
	ShelfID  int64                        `jorm:"column:shelf_id"`
	Author   *Author                      `jorm:"belongs_to fk:author_id inversed_by:Books"`
	Tags     *collection.Collection[*Tag] `jorm:"many_to_many:book_tag join_fk:book_id join_ref:tag_id fetch:extra_lazy"`
}

type Profile struct {
	ID       int64   `jorm:"pk auto"`
	Bio      string  `jorm:"size:500"`
	AuthorID int64   `jorm:"column:author_id"`
	Author   *Author `jorm:"belongs_to fk:author_id inversed_by:Profile"`
}

type Tag struct {
	ID   int64  `jorm:"pk auto"`
	Name string `jorm:"size:50"`
}

// Audit is flattened into every entity embedding it.
type Audit struct {
	CreatedBy string `jorm:"size:50"`
}

type Shelf struct {
	Audit
	ID    int64   `jorm:"pk auto"`
	Label string  `jorm:"size:50"`
	Books []*Book `jorm:"has_many fk:shelf_id"`
}

// Schema creates the fixture tables in SQLite.
const Schema = `
CREATE TABLE author (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(100));
CREATE TABLE book (id INTEGER PRIMARY KEY AUTOINCREMENT, title VARCHAR(200), author_id INTEGER, shelf_id INTEGER);
CREATE TABLE profile (id INTEGER PRIMARY KEY AUTOINCREMENT, bio VARCHAR(500), author_id INTEGER);
CREATE TABLE tag (id INTEGER PRIMARY KEY AUTOINCREMENT, name VARCHAR(50));
CREATE TABLE book_tag (book_id INTEGER, tag_id INTEGER);
CREATE TABLE shelf (id INTEGER PRIMARY KEY AUTOINCREMENT, label VARCHAR(50), created_by VARCHAR(50));
`

// Seed fills the fixture tables: two authors, three books, two tags.
const Seed = `
INSERT INTO author (id, name) VALUES (1, 'Ann'), (2, 'Bob');
INSERT INTO shelf (id, label, created_by) VALUES (1, 'fiction', 'ops');
INSERT INTO book (id, title, author_id, shelf_id) VALUES (10, 'First', 1, 1), (11, 'Second', 1, 1), (12, 'Third', 2, NULL);
INSERT INTO profile (id, bio, author_id) VALUES (5, 'writes', 1);
INSERT INTO tag (id, name) VALUES (100, 'go'), (101, 'orm');
INSERT INTO book_tag (book_id, tag_id) VALUES (10, 100), (10, 101), (11, 101);
`
