package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by designcore operations wraps exactly one
// of these so callers can classify it with errors.Is.
var (
	// ErrInvalidArgument reports malformed input: bad ids, non-numeric
	// parameter values, unknown roles, cycles or excessive nesting.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound reports that no matching document exists.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a violated uniqueness or linkage invariant.
	ErrConflict = errors.New("conflict")
	// ErrCorruptChain reports a broken version chain.
	ErrCorruptChain = errors.New("corrupt version chain")
	// ErrStore wraps opaque failures from the persistence backend.
	ErrStore = errors.New("store error")
)

// ErrEntityNotFound is returned when a referenced document does not exist.
type ErrEntityNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrEntityNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e ErrEntityNotFound) Is(target error) bool { return target == ErrNotFound }

// InvalidArgumentf formats an ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Conflictf formats an ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// CorruptChainf formats an ErrCorruptChain.
func CorruptChainf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptChain, fmt.Sprintf(format, args...))
}

// WrapStore classifies err as a store failure unless it already carries a
// domain kind. Nil stays nil.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// KindOf returns the name of the error kind carried by err, or "" when err
// is nil or unclassified.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCorruptChain):
		return "corrupt_chain"
	case errors.Is(err, ErrStore):
		return "store"
	}
	return ""
}
