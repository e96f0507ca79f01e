// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Errors returned when converting a wire document into one of the strict
// shapes.
var (
	// ErrUnexpectedVersion is returned when the declared document version
	// does not match the requested shape.
	ErrUnexpectedVersion = errors.New("unexpected psbt version")

	// ErrHasUnsignedTx is returned when a version 2 document carries an
	// unsigned transaction.
	ErrHasUnsignedTx = errors.New("version 2 psbt has an unsigned " +
		"transaction")

	// ErrMissingUnsignedTx is returned when a version 0 document has no
	// unsigned transaction.
	ErrMissingUnsignedTx = errors.New("version 0 psbt has no unsigned " +
		"transaction")

	// ErrMissingTxVersion is returned when a version 2 document does not
	// declare the transaction version.
	ErrMissingTxVersion = errors.New("missing transaction version")

	// ErrMissingInputCount is returned when a version 2 document does not
	// declare its input count.
	ErrMissingInputCount = errors.New("missing input count")

	// ErrMissingOutputCount is returned when a version 2 document does not
	// declare its output count.
	ErrMissingOutputCount = errors.New("missing output count")

	// ErrCountMismatch is returned when a declared count does not match
	// the number of maps.
	ErrCountMismatch = errors.New("declared count does not match maps")

	// ErrMissingPreviousTxid is returned for a version 2 input without a
	// previous txid.
	ErrMissingPreviousTxid = errors.New("missing previous txid")

	// ErrMissingSpentOutputIndex is returned for a version 2 input without
	// the index of the output it spends.
	ErrMissingSpentOutputIndex = errors.New("missing spent output index")

	// ErrMissingAmount is returned for a version 2 output without an
	// amount.
	ErrMissingAmount = errors.New("missing amount")

	// ErrMissingScriptPubkey is returned for a version 2 output without a
	// script.
	ErrMissingScriptPubkey = errors.New("missing script pubkey")

	// ErrHasTxVersion is returned for a version 0 document that declares
	// a transaction version.
	ErrHasTxVersion = errors.New("version 0 psbt has a transaction " +
		"version")

	// ErrHasFallbackLockTime is returned for a version 0 document that
	// declares a fallback lock time.
	ErrHasFallbackLockTime = errors.New("version 0 psbt has a fallback " +
		"lock time")

	// ErrHasInputCount is returned for a version 0 document that declares
	// an input count.
	ErrHasInputCount = errors.New("version 0 psbt has an input count")

	// ErrHasOutputCount is returned for a version 0 document that declares
	// an output count.
	ErrHasOutputCount = errors.New("version 0 psbt has an output count")

	// ErrHasTxModifiable is returned for a version 0 document that carries
	// modifiable flags.
	ErrHasTxModifiable = errors.New("version 0 psbt has modifiable flags")

	// ErrHasPreviousTxid is returned for a version 0 input that carries a
	// previous txid.
	ErrHasPreviousTxid = errors.New("version 0 input has a previous txid")

	// ErrHasSpentOutputIndex is returned for a version 0 input that
	// carries a spent output index.
	ErrHasSpentOutputIndex = errors.New("version 0 input has a spent " +
		"output index")

	// ErrHasSequence is returned for a version 0 input that carries a
	// sequence.
	ErrHasSequence = errors.New("version 0 input has a sequence")

	// ErrHasMinTime is returned for a version 0 input that carries a
	// required time based lock time.
	ErrHasMinTime = errors.New("version 0 input has a required time " +
		"lock time")

	// ErrHasMinHeight is returned for a version 0 input that carries a
	// required height based lock time.
	ErrHasMinHeight = errors.New("version 0 input has a required " +
		"height lock time")

	// ErrHasAmount is returned for a version 0 output that carries an
	// amount.
	ErrHasAmount = errors.New("version 0 output has an amount")

	// ErrHasScriptPubkey is returned for a version 0 output that carries a
	// script.
	ErrHasScriptPubkey = errors.New("version 0 output has a script")
)

// Errors returned by the model, the lock time resolver and the combiner.
var (
	// ErrLockTimeConflict is returned when one input requires a time based
	// lock time and another one a height based lock time.
	ErrLockTimeConflict = errors.New("inputs require both time and " +
		"height based lock times")

	// ErrInputsNotModifiable is the cause of a NotModifiableError when the
	// inputs modifiable flag is unset.
	ErrInputsNotModifiable = errors.New("inputs are not modifiable")

	// ErrOutputsNotModifiable is the cause of a NotModifiableError when the
	// outputs modifiable flag is unset.
	ErrOutputsNotModifiable = errors.New("outputs are not modifiable")

	// ErrMissingUtxo is returned when an input carries neither a witness
	// nor a non-witness UTXO.
	ErrMissingUtxo = errors.New("input has no funding utxo")

	// ErrOutOfBounds is the cause of every OutOfBoundsError.
	ErrOutOfBounds = errors.New("index out of bounds")

	// ErrNonWitnessUtxoMismatch is returned when a non-witness UTXO is not
	// the transaction the input spends from.
	ErrNonWitnessUtxoMismatch = errors.New("non-witness utxo does not " +
		"match previous txid")

	// ErrNilUtxo is returned when a nil UTXO is attached to an input.
	ErrNilUtxo = errors.New("nil utxo")

	// ErrDuplicateInput is returned when an input spending an outpoint
	// that is already spent by the document is added.
	ErrDuplicateInput = errors.New("outpoint already spent by another " +
		"input")

	// ErrMismatch is the cause of every MismatchError.
	ErrMismatch = errors.New("psbts describe different transactions")

	// ErrInconsistentKeySources is the cause of every
	// InconsistentKeySourcesError.
	ErrInconsistentKeySources = errors.New("inconsistent key sources")

	// ErrNoPsbtsToCombine is returned when CombineAll is called without
	// any document.
	ErrNoPsbtsToCombine = errors.New("no psbts to combine")

	// ErrInvalidXpub is returned when an extended key cannot be used as an
	// xpub map entry.
	ErrInvalidXpub = errors.New("invalid extended public key")
)

// IndexedError attributes an error to one input or output.
type IndexedError struct {
	// Kind is "input" or "output".
	Kind string

	// Index is the position of the input or output.
	Index int

	// Err is the underlying cause.
	Err error
}

// Error returns a human readable description of the failure.
func (e *IndexedError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Kind, e.Index, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IndexedError) Unwrap() error {
	return e.Err
}

func inputError(idx int, err error) error {
	return &IndexedError{Kind: "input", Index: idx, Err: err}
}

func outputError(idx int, err error) error {
	return &IndexedError{Kind: "output", Index: idx, Err: err}
}

// NotModifiableError is returned when a document is asked for a capability
// its modifiable flags do not grant. Either or both causes may be set.
type NotModifiableError struct {
	Inputs  bool
	Outputs bool
}

// Error returns a human readable description of the failure.
func (e *NotModifiableError) Error() string {
	switch {
	case e.Inputs && e.Outputs:
		return "psbt not modifiable: inputs and outputs are not " +
			"modifiable"

	case e.Inputs:
		return "psbt not modifiable: " + ErrInputsNotModifiable.Error()

	default:
		return "psbt not modifiable: " + ErrOutputsNotModifiable.Error()
	}
}

// Is lets errors.Is match the causes held by the error.
func (e *NotModifiableError) Is(target error) bool {
	switch target {
	case ErrInputsNotModifiable:
		return e.Inputs

	case ErrOutputsNotModifiable:
		return e.Outputs
	}

	return false
}

// OutOfBoundsError is returned when an index does not fit the sequence it
// addresses.
type OutOfBoundsError struct {
	Index int
	Len   int
}

// Error returns a human readable description of the failure.
func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("index %d out of bounds for length %d", e.Index,
		e.Len)
}

// Unwrap returns ErrOutOfBounds.
func (e *OutOfBoundsError) Unwrap() error {
	return ErrOutOfBounds
}

// MismatchError is returned by the combiner when the two documents disagree
// on a field that defines which transaction they describe.
type MismatchError struct {
	Field string
	A     any
	B     any
}

// Error returns a human readable description of the failure.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: %s differs (%v vs %v)", ErrMismatch, e.Field,
		e.A, e.B)
}

// Unwrap returns ErrMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}

// InconsistentKeySourcesError is returned by the combiner when the same
// extended key is given two origins that cannot describe the same key.
type InconsistentKeySourcesError struct {
	Xpub []byte
	A    KeySource
	B    KeySource
}

// Error returns a human readable description of the failure.
func (e *InconsistentKeySourcesError) Error() string {
	return fmt.Sprintf("%v for xpub %s: %x%v vs %x%v",
		ErrInconsistentKeySources, hex.EncodeToString(e.Xpub),
		e.A.Fingerprint, e.A.Path, e.B.Fingerprint, e.B.Path)
}

// Unwrap returns ErrInconsistentKeySources.
func (e *InconsistentKeySourcesError) Unwrap() error {
	return ErrInconsistentKeySources
}
