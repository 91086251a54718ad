package model

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound is returned when a model metadata cannot be found for a given type.
	ErrModelNotFound = errors.New("model not found")
	// ErrInvalidModel is returned when a model definition is invalid (e.g., missing primary key).
	ErrInvalidModel = errors.New("invalid model")
	// ErrRelationNotFound is returned when a requested relation does not exist on the model.
	ErrRelationNotFound = errors.New("relation not found")

	// ErrConfiguration covers invalid proxy settings and result mappings whose
	// mixed/non-mixed shape does not match the rows being hydrated.
	ErrConfiguration = errors.New("configuration error")
	// ErrMappingInconsistency is returned when hydration expects a different
	// cardinality than the metadata declares for a relation.
	ErrMappingInconsistency = errors.New("mapping inconsistency")
	// ErrEntityNotFound is returned when a lazy reference points at a row that does not exist.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrProxyGeneration is returned when a proxy artifact cannot be written.
	ErrProxyGeneration = errors.New("proxy generation failed")
)

// EntityNotFoundError names the entity a persister could not load.
type EntityNotFoundError struct {
	Entity string
	ID     Identifier
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity not found: %s%s", e.Entity, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

// MappingError reports a relation whose hydration-time use disagrees with metadata.
type MappingError struct {
	Entity   string
	Relation string
	Reason   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping inconsistency: %s.%s: %s", e.Entity, e.Relation, e.Reason)
}

func (e *MappingError) Is(target error) bool {
	return target == ErrMappingInconsistency
}
