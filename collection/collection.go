// Package collection holds the in-memory containers behind to-many
// associations. A Collection is either initialized, holding every member, or
// bound to a Loader and filled on first full access. Extra-lazy collections
// answer Count, Slice and Contains through the Loader without filling.
package collection

import (
	"context"
	"fmt"
	"reflect"

	"github.com/shrek82/jormx/model"
)

// Loader fetches the members of one association of one owner.
type Loader interface {
	Load(ctx context.Context) ([]any, error)
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]any, error)
	Contains(ctx context.Context, element any) (bool, error)
}

// Hydratable is the untyped surface hydration drives a collection through.
type Hydratable interface {
	HydrateAdd(v any) error
	HydrateSet(key, v any) error
	Last() any
	Key() any
	Has(key any) bool
	Element(key any) (any, bool)
	IsInitialized() bool
	SetInitialized(bool)
	Clear()
	TakeSnapshot()
	ElemType() reflect.Type
}

// Bindable collections can be attached to a Loader after allocation.
type Bindable interface {
	Bind(loader Loader, extraLazy bool)
}

type entry[T any] struct {
	key any
	val T
}

// insertion is an element queued by Add or Set since the last snapshot.
type insertion[T any] struct {
	entry[T]
	keyed bool
}

// Collection is an ordered, optionally keyed list of T. The zero value is an
// empty initialized collection.
type Collection[T any] struct {
	entries     []entry[T]
	index       map[string]int
	nextKey     int
	cursor      int
	initialized bool
	pending     []insertion[T]
	loader      Loader
	extraLazy   bool
}

// New returns an empty initialized collection.
func New[T any](items ...T) *Collection[T] {
	c := &Collection[T]{initialized: true}
	for _, v := range items {
		c.add(v)
	}
	return c
}

// NewLazy returns a collection filled by loader on first full access.
func NewLazy[T any](loader Loader, extraLazy bool) *Collection[T] {
	c := &Collection[T]{}
	c.Bind(loader, extraLazy)
	return c
}

func (c *Collection[T]) Bind(loader Loader, extraLazy bool) {
	c.loader = loader
	c.extraLazy = extraLazy
	c.initialized = loader == nil
}

func (c *Collection[T]) ElemType() reflect.Type {
	return reflect.TypeFor[T]()
}

func (c *Collection[T]) IsInitialized() bool {
	return c.initialized || c.loader == nil
}

func (c *Collection[T]) SetInitialized(v bool) {
	c.initialized = v
}

// IsExtraLazy reports whether Count, Slice and Contains avoid a full load.
func (c *Collection[T]) IsExtraLazy() bool {
	return c.extraLazy
}

// IsDirty reports whether elements were added since the last snapshot.
func (c *Collection[T]) IsDirty() bool {
	return len(c.pending) > 0
}

// Pending returns the elements added since the last snapshot.
func (c *Collection[T]) Pending() []T {
	out := make([]T, len(c.pending))
	for i, p := range c.pending {
		out[i] = p.val
	}
	return out
}

// TakeSnapshot marks the current state as persisted.
func (c *Collection[T]) TakeSnapshot() {
	c.pending = nil
}

func (c *Collection[T]) Clear() {
	c.entries = nil
	c.index = nil
	c.nextKey = 0
	c.cursor = 0
	c.pending = nil
}

func (c *Collection[T]) HydrateAdd(v any) error {
	t, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: %T is not a %s", model.ErrMappingInconsistency, v, c.ElemType())
	}
	c.add(t)
	return nil
}

func (c *Collection[T]) HydrateSet(key, v any) error {
	t, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: %T is not a %s", model.ErrMappingInconsistency, v, c.ElemType())
	}
	c.set(key, t)
	return nil
}

// Last moves the cursor to the last element and returns it.
func (c *Collection[T]) Last() any {
	if len(c.entries) == 0 {
		return nil
	}
	c.cursor = len(c.entries) - 1
	return c.entries[c.cursor].val
}

// Key returns the key at the cursor.
func (c *Collection[T]) Key() any {
	if c.cursor >= len(c.entries) {
		return nil
	}
	return c.entries[c.cursor].key
}

func (c *Collection[T]) Has(key any) bool {
	_, ok := c.index[keyOf(key)]
	return ok
}

func (c *Collection[T]) Element(key any) (any, bool) {
	v, ok := c.Get(key)
	return v, ok
}

// Get returns the element stored under key.
func (c *Collection[T]) Get(key any) (T, bool) {
	if pos, ok := c.index[keyOf(key)]; ok {
		return c.entries[pos].val, true
	}
	var zero T
	return zero, false
}

// Add appends v and records it as pending until the next snapshot.
// An uninitialized collection only queues it.
func (c *Collection[T]) Add(v T) {
	c.pending = append(c.pending, insertion[T]{entry: entry[T]{val: v}})
	if c.IsInitialized() {
		c.add(v)
	}
}

// Set stores v under key, replacing any element already there. An
// uninitialized collection stores it once loaded.
func (c *Collection[T]) Set(key any, v T) {
	c.pending = append(c.pending, insertion[T]{entry: entry[T]{key: key, val: v}, keyed: true})
	if c.IsInitialized() {
		c.set(key, v)
	}
}

// Remove drops the first element equal to v, loading the collection first.
func (c *Collection[T]) Remove(ctx context.Context, v T) (bool, error) {
	if err := c.Load(ctx); err != nil {
		return false, err
	}
	for i, e := range c.entries {
		if same(e.val, v) {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			c.reindex()
			for j, p := range c.pending {
				if same(p.val, v) {
					c.pending = append(c.pending[:j], c.pending[j+1:]...)
					break
				}
			}
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of elements held in memory.
func (c *Collection[T]) Len() int {
	return len(c.entries)
}

// Values returns the elements held in memory, in order.
func (c *Collection[T]) Values() []T {
	out := make([]T, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.val
	}
	return out
}

// Elements returns the elements held in memory as untyped values.
func (c *Collection[T]) Elements() []any {
	out := make([]any, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.val
	}
	return out
}

// Keys returns the keys of the elements held in memory, in order.
func (c *Collection[T]) Keys() []any {
	out := make([]any, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.key
	}
	return out
}

// Load fills an uninitialized collection. Elements queued by Add before the
// load are kept after the loaded ones.
func (c *Collection[T]) Load(ctx context.Context) error {
	if c.IsInitialized() {
		return nil
	}
	items, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}
	c.entries, c.index, c.nextKey, c.cursor = nil, nil, 0, 0
	for _, item := range items {
		if err := c.HydrateAdd(item); err != nil {
			return err
		}
	}
	for _, p := range c.pending {
		switch {
		case p.keyed:
			c.set(p.key, p.val)
		case !c.holds(p.val):
			c.add(p.val)
		}
	}
	c.initialized = true
	return nil
}

// All loads the collection and returns its elements.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c.Values(), nil
}

// Count returns the number of members. An extra-lazy collection that is not
// loaded asks the Loader and adds the elements queued since the last
// snapshot, which the store cannot know about yet.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	if !c.IsInitialized() && c.extraLazy {
		n, err := c.loader.Count(ctx)
		if err != nil {
			return 0, err
		}
		return n + len(c.pending), nil
	}
	if err := c.Load(ctx); err != nil {
		return 0, err
	}
	return len(c.entries), nil
}

// Slice returns up to length members starting at offset; a negative length
// means all remaining. A dirty extra-lazy collection is loaded first so
// queued elements take their place in the order.
func (c *Collection[T]) Slice(ctx context.Context, offset, length int) ([]T, error) {
	if !c.IsInitialized() && c.extraLazy && !c.IsDirty() {
		items, err := c.loader.Slice(ctx, offset, length)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, len(items))
		for _, item := range items {
			t, ok := item.(T)
			if !ok {
				return nil, fmt.Errorf("%w: %T is not a %s", model.ErrMappingInconsistency, item, c.ElemType())
			}
			out = append(out, t)
		}
		return out, nil
	}
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	values := c.Values()
	if offset >= len(values) {
		return []T{}, nil
	}
	end := len(values)
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return values[offset:end], nil
}

// Contains reports whether v is a member. An extra-lazy collection checks
// queued elements first and otherwise asks the Loader.
func (c *Collection[T]) Contains(ctx context.Context, v T) (bool, error) {
	if !c.IsInitialized() && c.extraLazy {
		for _, p := range c.pending {
			if same(p.val, v) {
				return true, nil
			}
		}
		return c.loader.Contains(ctx, v)
	}
	if err := c.Load(ctx); err != nil {
		return false, err
	}
	return c.holds(v), nil
}

func (c *Collection[T]) add(v T) {
	key := c.nextKey
	c.nextKey++
	c.push(key, v)
}

func (c *Collection[T]) set(key any, v T) {
	if pos, ok := c.index[keyOf(key)]; ok {
		c.entries[pos].val = v
		c.cursor = pos
		return
	}
	if n, ok := key.(int); ok && n >= c.nextKey {
		c.nextKey = n + 1
	}
	c.push(key, v)
}

func (c *Collection[T]) push(key any, v T) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.entries = append(c.entries, entry[T]{key: key, val: v})
	c.cursor = len(c.entries) - 1
	c.index[keyOf(key)] = c.cursor
}

func (c *Collection[T]) reindex() {
	c.index = make(map[string]int, len(c.entries))
	for i, e := range c.entries {
		c.index[keyOf(e.key)] = i
	}
	c.cursor = 0
}

func (c *Collection[T]) holds(v T) bool {
	for _, e := range c.entries {
		if same(e.val, v) {
			return true
		}
	}
	return false
}

func keyOf(key any) string {
	return model.ID(key).Key()
}

func same(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta := reflect.TypeOf(a)
	if ta == reflect.TypeOf(b) && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
