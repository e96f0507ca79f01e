// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/btcsuite/psbtv2/rawpsbt"
	"github.com/davecgh/go-spew/spew"
)

// Combine merges two documents describing the same transaction. The result
// is the union of both: where both carry a value for the same field the one
// from a is kept. Neither argument is modified.
func Combine(a, b *Packet) (*Packet, error) {
	if err := checkSameTransaction(a, b); err != nil {
		return nil, err
	}

	c := a.Copy()
	c.FallbackLockTime = c.FallbackLockTime.Alt(b.FallbackLockTime)
	c.Modifiable = combineFlags(a.Modifiable, b.Modifiable)

	xpubs, err := combineXpubs(c.Xpubs, b.Xpubs)
	if err != nil {
		return nil, err
	}
	c.Xpubs = xpubs
	c.Proprietary = mergeBytesMap(c.Proprietary, b.Proprietary)
	c.Unknowns = mergeBytesMap(c.Unknowns, b.Unknowns)

	for i := range c.Inputs {
		mergeInput(&c.Inputs[i], &b.Inputs[i])
	}
	for i := range c.Outputs {
		mergeOutputFields(&c.Outputs[i].OutputFields,
			&b.Outputs[i].OutputFields)
	}

	log.Tracef("Combined psbt: %v", newLogClosure(func() string {
		return spew.Sdump(c)
	}))

	return c, nil
}

// CombineAll folds Combine over packets from left to right.
func CombineAll(packets ...*Packet) (*Packet, error) {
	if len(packets) == 0 {
		return nil, ErrNoPsbtsToCombine
	}

	c := packets[0].Copy()
	for _, p := range packets[1:] {
		var err error
		c, err = Combine(c, p)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// checkSameTransaction makes sure both documents build the same
// transaction: same version, same outpoints in the same order and the same
// outputs.
func checkSameTransaction(a, b *Packet) error {
	if a.TxVersion != b.TxVersion {
		return &MismatchError{
			Field: "tx version", A: a.TxVersion, B: b.TxVersion,
		}
	}

	if len(a.Inputs) != len(b.Inputs) {
		return &MismatchError{
			Field: "input count", A: len(a.Inputs), B: len(b.Inputs),
		}
	}
	for i := range a.Inputs {
		opA, opB := a.Inputs[i].OutPoint(), b.Inputs[i].OutPoint()
		if opA != opB {
			return &MismatchError{
				Field: fmt.Sprintf("input %d outpoint", i),
				A:     opA, B: opB,
			}
		}
	}

	if len(a.Outputs) != len(b.Outputs) {
		return &MismatchError{
			Field: "output count", A: len(a.Outputs),
			B: len(b.Outputs),
		}
	}
	for i := range a.Outputs {
		outA, outB := &a.Outputs[i], &b.Outputs[i]
		if outA.Amount != outB.Amount {
			return &MismatchError{
				Field: fmt.Sprintf("output %d amount", i),
				A:     outA.Amount, B: outB.Amount,
			}
		}
		if !bytes.Equal(outA.Script, outB.Script) {
			return &MismatchError{
				Field: fmt.Sprintf("output %d script", i),
				A:     outA.Script, B: outB.Script,
			}
		}
	}

	return nil
}

// mergeInput adds the fields of src that dest lacks to dest.
func mergeInput(dest, src *Input) {
	dest.Sequence = dest.Sequence.Alt(src.Sequence)
	dest.MinTime = dest.MinTime.Alt(src.MinTime)
	dest.MinHeight = dest.MinHeight.Alt(src.MinHeight)

	mergeInputFields(&dest.InputFields, &src.InputFields)
}

func mergeInputFields(dest, src *rawpsbt.InputFields) {
	s := src.Copy()

	if dest.NonWitnessUtxo == nil {
		dest.NonWitnessUtxo = s.NonWitnessUtxo
	}
	if dest.WitnessUtxo == nil {
		dest.WitnessUtxo = s.WitnessUtxo
	}
	dest.PartialSigs = mergeMap(dest.PartialSigs, s.PartialSigs)
	dest.SighashType = dest.SighashType.Alt(s.SighashType)
	if dest.RedeemScript == nil {
		dest.RedeemScript = s.RedeemScript
	}
	if dest.WitnessScript == nil {
		dest.WitnessScript = s.WitnessScript
	}
	dest.Bip32Derivation = mergeMap(dest.Bip32Derivation, s.Bip32Derivation)
	dest.FinalScriptSig = dest.FinalScriptSig.Alt(s.FinalScriptSig)
	if dest.FinalScriptWitness == nil {
		dest.FinalScriptWitness = s.FinalScriptWitness
	}
	dest.Ripemd160Preimages = mergeMap(
		dest.Ripemd160Preimages, s.Ripemd160Preimages,
	)
	dest.Sha256Preimages = mergeMap(dest.Sha256Preimages, s.Sha256Preimages)
	dest.Hash160Preimages = mergeMap(
		dest.Hash160Preimages, s.Hash160Preimages,
	)
	dest.Hash256Preimages = mergeMap(
		dest.Hash256Preimages, s.Hash256Preimages,
	)
	if dest.TapKeySig == nil {
		dest.TapKeySig = s.TapKeySig
	}
	dest.TapScriptSigs = mergeMap(dest.TapScriptSigs, s.TapScriptSigs)
	dest.TapLeafScripts = mergeMap(dest.TapLeafScripts, s.TapLeafScripts)
	dest.TapBip32Derivation = mergeMap(
		dest.TapBip32Derivation, s.TapBip32Derivation,
	)
	if dest.TapInternalKey == nil {
		dest.TapInternalKey = s.TapInternalKey
	}
	if dest.TapMerkleRoot == nil {
		dest.TapMerkleRoot = s.TapMerkleRoot
	}
	dest.Proprietary = mergeMap(dest.Proprietary, s.Proprietary)
	dest.Unknowns = mergeMap(dest.Unknowns, s.Unknowns)
}

func mergeOutputFields(dest, src *rawpsbt.OutputFields) {
	s := src.Copy()

	if dest.RedeemScript == nil {
		dest.RedeemScript = s.RedeemScript
	}
	if dest.WitnessScript == nil {
		dest.WitnessScript = s.WitnessScript
	}
	dest.Bip32Derivation = mergeMap(dest.Bip32Derivation, s.Bip32Derivation)
	if dest.TapInternalKey == nil {
		dest.TapInternalKey = s.TapInternalKey
	}
	if dest.TapTree == nil {
		dest.TapTree = s.TapTree
	}
	dest.TapBip32Derivation = mergeMap(
		dest.TapBip32Derivation, s.TapBip32Derivation,
	)
	dest.Proprietary = mergeMap(dest.Proprietary, s.Proprietary)
	dest.Unknowns = mergeMap(dest.Unknowns, s.Unknowns)
}

// mergeMap adds the entries of src whose key is not in dest. The values of
// src are taken as is, callers pass a copy.
func mergeMap[K comparable, V any](dest, src map[K]V) map[K]V {
	if len(src) == 0 {
		return dest
	}
	if dest == nil {
		dest = make(map[K]V, len(src))
	}

	for k, v := range src {
		if _, ok := dest[k]; !ok {
			dest[k] = v
		}
	}

	return dest
}

// mergeBytesMap is mergeMap for maps that still alias their owner.
func mergeBytesMap[K comparable](dest, src map[K][]byte) map[K][]byte {
	return mergeMap(dest, cloneBytesMap(src))
}

// combineXpubs merges two xpub maps. When both name the same key with
// different origins, the two are reconciled if one path ends with or starts
// with the other; the longer origin is kept. Any other disagreement fails.
func combineXpubs(dest, src map[string]KeySource) (map[string]KeySource,
	error) {

	for xpub, srcSource := range src {
		destSource, ok := dest[xpub]
		if !ok {
			if dest == nil {
				dest = make(map[string]KeySource, len(src))
			}
			dest[xpub] = CloneKeySource(srcSource)

			continue
		}

		resolved, ok := resolveKeySource(destSource, srcSource)
		if !ok {
			return nil, &InconsistentKeySourcesError{
				Xpub: []byte(xpub),
				A:    destSource,
				B:    srcSource,
			}
		}
		dest[xpub] = CloneKeySource(resolved)
	}

	return dest, nil
}

// resolveKeySource picks the origin to keep for two descriptions of the same
// extended key.
func resolveKeySource(a, b KeySource) (KeySource, bool) {
	if a.Equal(b) {
		return a, true
	}

	if len(a.Path) == len(b.Path) {
		return KeySource{}, false
	}

	short, long := a, b
	if len(a.Path) > len(b.Path) {
		short, long = b, a
	}

	tail := long.Path[len(long.Path)-len(short.Path):]
	head := long.Path[:len(short.Path)]
	if slices.Equal(short.Path, tail) || slices.Equal(short.Path, head) {
		return long, true
	}

	return KeySource{}, false
}
