package store

import "errors"

func isCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
