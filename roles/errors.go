// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/psbtv2/psbtv2"
)

// Role names used in RoleError.
const (
	roleConstructor = "constructor"
	roleUpdater     = "updater"
	roleSigner      = "signer"
	roleFinalizer   = "finalizer"
	roleExtractor   = "extractor"
)

var (
	// ErrNotFinalized is returned when a document with an input that has
	// no final scripts is handed to the extractor.
	ErrNotFinalized = errors.New("input is not finalized")

	// ErrKeyNotFound is returned by a KeyGetter that does not hold the
	// requested key. The signer skips such inputs.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrUnsupportedScript is returned by the default input signer for a
	// script it cannot produce a signature for.
	ErrUnsupportedScript = errors.New("unsupported script type")

	// ErrMissingScript is returned by the default input signer when a
	// script hash output is spent without the matching redeem or witness
	// script.
	ErrMissingScript = errors.New("missing redeem or witness script")

	// ErrFinalize is the cause of every input finalization failure.
	ErrFinalize = errors.New("unable to finalize input")

	// ErrEmptyFinalScripts is returned when a finalizer produces neither a
	// scriptSig nor a witness.
	ErrEmptyFinalScripts = errors.New("finalizer returned no final " +
		"scripts")

	// ErrMissingFinalWitness is returned when a finalizer produces no
	// witness for an input funded by a witness UTXO.
	ErrMissingFinalWitness = errors.New("finalizer returned no witness " +
		"for a witness input")

	// ErrNonStandardInputSighash is the cause of a SighashError for an
	// input whose declared sighash type is not a standard ECDSA type.
	ErrNonStandardInputSighash = errors.New("non-standard input sighash " +
		"type")

	// ErrNonStandardPartialSigSighash is the cause of a SighashError for a
	// partial signature committing to a non-standard sighash type.
	ErrNonStandardPartialSigSighash = errors.New("non-standard partial " +
		"signature sighash type")

	// ErrWrongSighashFlag is the cause of a SighashError for a partial
	// signature whose sighash type differs from the input's.
	ErrWrongSighashFlag = errors.New("wrong sighash flag")

	// ErrExtract is the cause of every extraction failure other than a
	// fee rate above the limit.
	ErrExtract = errors.New("unable to extract transaction")

	// ErrFeeTooHigh is returned when the extracted transaction pays a fee
	// rate above the allowed maximum.
	ErrFeeTooHigh = errors.New("fee rate too high")
)

// RoleError is returned by a failed role transition. Packet is the document
// as it was handed to the role, untouched, so the caller can inspect or retry
// it.
type RoleError struct {
	Role   string
	Packet *psbtv2.Packet
	Err    error
}

// Error returns a human readable description of the failure.
func (e *RoleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Role, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RoleError) Unwrap() error {
	return e.Err
}

func roleError(role string, p *psbtv2.Packet, err error) error {
	return &RoleError{Role: role, Packet: p, Err: err}
}

// SighashError reports a sighash policy violation of an input. PubKey is
// only set for violations caused by a partial signature.
type SighashError struct {
	InputIndex int
	PubKey     []byte
	Got        txscript.SigHashType
	Required   txscript.SigHashType
	Err        error
}

// Error returns a human readable description of the failure.
func (e *SighashError) Error() string {
	if errors.Is(e.Err, ErrWrongSighashFlag) {
		return fmt.Sprintf("input %d: %v (got: %v, required: %v) "+
			"pubkey: %x", e.InputIndex, e.Err, e.Got, e.Required,
			e.PubKey)
	}

	return fmt.Sprintf("input %d: %v: %v", e.InputIndex, e.Err, e.Got)
}

// Unwrap returns the underlying cause.
func (e *SighashError) Unwrap() error {
	return e.Err
}

// SigningKeys maps an input index to the public keys that signed it.
type SigningKeys map[int][][]byte

// SigningErrors maps an input index to the reason it could not be signed.
type SigningErrors map[int]error

// Error lists every failed input in index order.
func (e SigningErrors) Error() string {
	indexes := make([]int, 0, len(e))
	for idx := range e {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	parts := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		parts = append(parts, fmt.Sprintf("input %d: %v", idx, e[idx]))
	}

	return "signing failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per input causes to errors.Is and errors.As.
func (e SigningErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, err := range e {
		errs = append(errs, err)
	}

	return errs
}
