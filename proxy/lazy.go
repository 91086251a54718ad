package proxy

import (
	"fmt"

	"github.com/shrek82/jormx/model"
)

// Lazy is the loading state embedded in every proxy. It moves from
// uninitialized to initialized exactly once. A failed load is remembered and
// returned by every later access; identifier access stays available.
//
// Lazy is not safe for concurrent use.
type Lazy struct {
	entity      string
	id          model.Identifier
	initialized bool
	loading     bool
	initializer func(*Lazy) error
	cloner      func(target any) error
	err         error
}

func noopInitializer(*Lazy) error { return nil }
func noopCloner(any) error        { return nil }

// Bind installs the loader of the proxy. init loads the proxy's own target;
// clone fills the target of a clone from a separately loaded original.
func (l *Lazy) Bind(entity string, id model.Identifier, init func(*Lazy) error, clone func(target any) error) {
	l.entity = entity
	l.id = id
	l.initializer = init
	l.cloner = clone
	l.err = nil
}

func (l *Lazy) Identifier() model.Identifier {
	return l.id
}

func (l *Lazy) IsInitialized() bool {
	return l.initialized
}

// MarkInitialized records that the target holds loaded state.
func (l *Lazy) MarkInitialized() {
	l.initialized = true
	l.initializer = noopInitializer
	l.cloner = noopCloner
}

// Err returns the failure of the last load, if any.
func (l *Lazy) Err() error {
	return l.err
}

// EnsureLoaded runs the initializer once. The initializer and cloner are
// swapped for no-ops first, and a loader touching the same proxy returns
// immediately instead of recursing.
func (l *Lazy) EnsureLoaded() error {
	if l.initialized || l.loading {
		return nil
	}
	if l.err != nil {
		return l.err
	}
	init := l.initializer
	if init == nil {
		l.err = fmt.Errorf("%w: proxy of %s%s has no loader", model.ErrConfiguration, l.entity, l.id)
		return l.err
	}
	l.initializer = noopInitializer
	l.cloner = noopCloner
	l.loading = true
	err := init(l)
	l.loading = false
	if err != nil {
		l.err = err
		return err
	}
	l.initialized = true
	return nil
}

// MustLoad is EnsureLoaded for accessors that cannot return an error.
func (l *Lazy) MustLoad() {
	if err := l.EnsureLoaded(); err != nil {
		panic(err)
	}
}

// CloneTo prepares dst, the state of a clone whose target already holds a
// copy of the source target. An uninitialized source loads the clone
// through its cloner; the source itself stays uninitialized.
func (l *Lazy) CloneTo(dst *Lazy, target any) error {
	dst.entity = l.entity
	dst.id = append(model.Identifier(nil), l.id...)
	if l.initialized {
		dst.MarkInitialized()
		return nil
	}
	if l.err != nil {
		dst.err = l.err
		return l.err
	}
	cloner := l.cloner
	if cloner == nil {
		dst.err = fmt.Errorf("%w: proxy of %s%s has no loader", model.ErrConfiguration, l.entity, l.id)
		return dst.err
	}
	if err := cloner(target); err != nil {
		dst.err = err
		return err
	}
	dst.MarkInitialized()
	return nil
}
