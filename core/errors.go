package core

import "errors"

var (
	// ErrNotFound is returned by lookups that find no record for a key.
	ErrNotFound = errors.New("key not found")
	// ErrCorrupted is returned when an on-disk segment fails a checksum or
	// header validation.
	ErrCorrupted = errors.New("corrupted segment")
	// ErrClosed is returned by operations attempted on a closed handle or
	// engine.
	ErrClosed = errors.New("closed")
)
