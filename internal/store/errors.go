package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt means persisted data could not be read back. It is never
	// repaired automatically.
	ErrCorrupt = errors.New("persisted state corrupt")

	// ErrInvalid means the caller's input was rejected before any write.
	ErrInvalid = errors.New("invalid input")
)

func notFound(collection, id string) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
}

func corrupt(collection, id string, err error) error {
	if id == "" {
		return fmt.Errorf("%w: collection %s: %v", ErrCorrupt, collection, err)
	}
	return fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, collection, id, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
