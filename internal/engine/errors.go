package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/docbase/model"
)

// ErrInvalidArgument is returned for caller-contract violations,
// before any transactional work begins.
var ErrInvalidArgument = errors.New("engine: invalid argument")

// ErrSequenceExhausted is returned when the int32 auto-id mode runs
// out of representable identities.
var ErrSequenceExhausted = errors.New("engine: auto-id sequence exhausted")

// InvalidNameError indicates a collection name that fails the
// identifier pattern.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid collection name %q", e.Name)
}

// LimitError indicates that adding a collection would meet or exceed
// the directory size limit.
type LimitError struct {
	Name      string
	Projected int
	Limit     int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("collection %q exceeds directory limit: %d >= %d bytes", e.Name, e.Projected, e.Limit)
}

// ExistsError indicates a rename target that collides with an existing
// collection name (case-insensitively).
type ExistsError struct {
	Name string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("collection %q already exists", e.Name)
}

// InvalidIDError indicates an illegal document identity: null or one
// of the reserved min/max sentinels.
type InvalidIDError struct {
	Type model.Type
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid document identity of type %s", e.Type)
}
