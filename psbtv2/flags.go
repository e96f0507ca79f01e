// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

// TxModifiableFlags is the PSBT_GLOBAL_TX_MODIFIABLE bit field.
type TxModifiableFlags uint8

const (
	// FlagInputsModifiable is set while inputs may be added or removed.
	FlagInputsModifiable TxModifiableFlags = 1 << 0

	// FlagOutputsModifiable is set while outputs may be added or removed.
	FlagOutputsModifiable TxModifiableFlags = 1 << 1

	// FlagHasSighashSingle is set once any signature commits with
	// SIGHASH_SINGLE, which ties inputs and outputs at equal positions.
	FlagHasSighashSingle TxModifiableFlags = 1 << 2

	// sigHashMask extracts the base sighash type.
	sigHashMask = 0x1f
)

// InputsModifiable reports whether inputs may be added.
func (f TxModifiableFlags) InputsModifiable() bool {
	return f&FlagInputsModifiable != 0
}

// OutputsModifiable reports whether outputs may be added.
func (f TxModifiableFlags) OutputsModifiable() bool {
	return f&FlagOutputsModifiable != 0
}

// HasSighashSingle reports whether a SIGHASH_SINGLE signature exists.
func (f TxModifiableFlags) HasSighashSingle() bool {
	return f&FlagHasSighashSingle != 0
}

// Set returns the flags with flag set.
func (f TxModifiableFlags) Set(flag TxModifiableFlags) TxModifiableFlags {
	return f | flag
}

// Clear returns the flags with flag cleared.
func (f TxModifiableFlags) Clear(flag TxModifiableFlags) TxModifiableFlags {
	return f &^ flag
}

// AfterSignature returns the flags a document carries after a signature with
// the given sighash type was added. Unless the signature is ANYONECANPAY the
// inputs become fixed. Unless its base type is NONE the outputs become fixed.
// A SINGLE signature sets the sighash single bit. SIGHASH_DEFAULT is treated
// as ALL.
func (f TxModifiableFlags) AfterSignature(
	hashType txscript.SigHashType) TxModifiableFlags {

	if hashType&txscript.SigHashAnyOneCanPay == 0 {
		f = f.Clear(FlagInputsModifiable)
	}

	base := hashType & sigHashMask
	if base != txscript.SigHashNone {
		f = f.Clear(FlagOutputsModifiable)
	}
	if base == txscript.SigHashSingle {
		f = f.Set(FlagHasSighashSingle)
	}

	return f
}

// combineFlags merges the flags of two documents: a part stays modifiable
// only if both agree, the sighash single bit survives if either has it.
func combineFlags(a, b TxModifiableFlags) TxModifiableFlags {
	const modifiable = FlagInputsModifiable | FlagOutputsModifiable

	return (a & b & modifiable) | ((a | b) & FlagHasSighashSingle)
}

// String returns the set flags joined by "|".
func (f TxModifiableFlags) String() string {
	var names []string
	if f.InputsModifiable() {
		names = append(names, "inputs")
	}
	if f.OutputsModifiable() {
		names = append(names, "outputs")
	}
	if f.HasSighashSingle() {
		names = append(names, "sighash_single")
	}
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}
