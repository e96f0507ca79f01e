// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawpsbt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMagic is returned when a serialization does not start
	// with the 'psbt' magic followed by the 0xff separator.
	ErrInvalidMagic = errors.New("invalid psbt magic bytes")

	// ErrDuplicateKey is returned when the same key appears twice within
	// one map.
	ErrDuplicateKey = errors.New("duplicate key in map")

	// ErrInvalidKeyData is returned when the key data of an entry does not
	// have the length or form its key type requires.
	ErrInvalidKeyData = errors.New("invalid key data")

	// ErrInvalidValue is returned when the value of an entry cannot be
	// parsed for its key type.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnsupportedVersion is returned for a document version other than
	// 0 or 2.
	ErrUnsupportedVersion = errors.New("unsupported psbt version")

	// ErrMissingCounts is returned when a document carries neither an
	// unsigned transaction nor explicit input and output counts, so the
	// number of maps that follow the global map is unknown.
	ErrMissingCounts = errors.New("input and output counts unknown")

	// ErrCountMismatch is returned when the explicit counts disagree with
	// the unsigned transaction or with the number of maps.
	ErrCountMismatch = errors.New("input or output count mismatch")

	// ErrSignedUnsignedTx is returned when the unsigned transaction carries
	// a signature script or a witness.
	ErrSignedUnsignedTx = errors.New("unsigned transaction has " +
		"signature data")

	// ErrPreimageMismatch is returned when a preimage does not hash to the
	// key it is stored under.
	ErrPreimageMismatch = errors.New("preimage does not match hash")
)

// KeyError attributes a decoding or encoding failure to a single entry of
// the document.
type KeyError struct {
	// Map is one of "global", "input" or "output".
	Map string

	// Index is the position of the input or output map. It is unused for
	// the global map.
	Index int

	// KeyType is the type byte of the failing entry.
	KeyType uint8

	// Err is the underlying cause.
	Err error
}

// Error returns a human readable description of the failure.
func (e *KeyError) Error() string {
	if e.Map == mapGlobal {
		return fmt.Sprintf("global key 0x%02x: %v", e.KeyType, e.Err)
	}

	return fmt.Sprintf("%s %d key 0x%02x: %v", e.Map, e.Index, e.KeyType,
		e.Err)
}

// Unwrap returns the underlying cause.
func (e *KeyError) Unwrap() error {
	return e.Err
}

const (
	mapGlobal = "global"
	mapInput  = "input"
	mapOutput = "output"
)
