package storage

import "errors"

var (
	// ErrNoIVReadings is returned when no IV readings are found for a symbol
	ErrNoIVReadings = errors.New("no IV readings found")
	// ErrInvalidReading is returned for readings without a symbol or a positive, finite IV
	ErrInvalidReading = errors.New("invalid IV reading")
	// ErrUnknownBackend is returned by NewStorage for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown storage backend")
)
