package hydrate

import (
	"maps"
	"slices"

	"github.com/shrek82/jormx/model"
)

// Row is one fetched record, column name to driver value.
type Row map[string]any

// Mixed is a result element combining entities, scalars and new objects.
type Mixed map[string]any

// Result is the ordered output of one hydration run. Unindexed elements are
// keyed by their append position; indexed elements by their index value,
// later elements replacing earlier ones under the same key.
type Result struct {
	keys    []any
	values  []any
	index   map[string]int
	counter int
}

func newResult() *Result {
	return &Result{index: make(map[string]int)}
}

// Append adds v under the next position key and returns that key.
func (r *Result) Append(v any) any {
	key := r.counter
	r.counter++
	r.Set(key, v)
	return key
}

// Set stores v under key, replacing any element already there.
func (r *Result) Set(key, v any) {
	k := model.ID(key).Key()
	if pos, ok := r.index[k]; ok {
		r.values[pos] = v
		return
	}
	r.index[k] = len(r.values)
	r.keys = append(r.keys, key)
	r.values = append(r.values, v)
}

// Get returns the element stored under key.
func (r *Result) Get(key any) (any, bool) {
	pos, ok := r.index[model.ID(key).Key()]
	if !ok {
		return nil, false
	}
	return r.values[pos], true
}

// lastKey is the position key of the most recently appended element.
func (r *Result) lastKey() any {
	return r.counter - 1
}

func (r *Result) Len() int { return len(r.values) }

// At returns the i-th element in result order.
func (r *Result) At(i int) any { return r.values[i] }

func (r *Result) Keys() []any { return append([]any(nil), r.keys...) }

func (r *Result) Values() []any { return append([]any(nil), r.values...) }

// Entities returns the elements of r that are a T, unwrapping mixed elements.
// Values of one mixed element come in the order of their names.
func Entities[T any](r *Result) []T {
	var out []T
	for _, v := range r.values {
		if mixed, ok := v.(Mixed); ok {
			for _, name := range slices.Sorted(maps.Keys(mixed)) {
				if t, ok := mixed[name].(T); ok {
					out = append(out, t)
				}
			}
			continue
		}
		if t, ok := v.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
