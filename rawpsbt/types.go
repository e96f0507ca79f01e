// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rawpsbt implements the loosely typed wire form of a partially
// signed bitcoin transaction as defined by BIP-174 and BIP-370.
//
// Every version dependent field of the document is optional here. The
// package only enforces the byte level rules of the format: key framing,
// duplicate keys, value lengths and the validity of embedded keys and
// signatures. Whether a field is allowed to be present for the declared
// version is decided by the strict shapes in package psbtv2.
package rawpsbt

import (
	"maps"
	"slices"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// GlobalType is the key type of an entry in the global map.
type GlobalType uint8

const (
	// UnsignedTxType holds the unsigned transaction of a version 0
	// document.
	UnsignedTxType GlobalType = 0x00

	// XpubType holds an extended public key together with its origin.
	XpubType GlobalType = 0x01

	// TxVersionType holds the version of the transaction being built.
	TxVersionType GlobalType = 0x02

	// FallbackLockTimeType holds the lock time to use when no input
	// declares a lock time requirement.
	FallbackLockTimeType GlobalType = 0x03

	// InputCountType holds the number of inputs as a compact size.
	InputCountType GlobalType = 0x04

	// OutputCountType holds the number of outputs as a compact size.
	OutputCountType GlobalType = 0x05

	// TxModifiableType holds the modifiable flags byte.
	TxModifiableType GlobalType = 0x06

	// VersionType holds the version of the document format itself.
	VersionType GlobalType = 0xFB

	// ProprietaryGlobalType marks a proprietary global entry.
	ProprietaryGlobalType GlobalType = 0xFC
)

// InputType is the key type of an entry in an input map.
type InputType uint8

const (
	NonWitnessUtxoType         InputType = 0x00
	WitnessUtxoType            InputType = 0x01
	PartialSigType             InputType = 0x02
	SighashType                InputType = 0x03
	RedeemScriptInputType      InputType = 0x04
	WitnessScriptInputType     InputType = 0x05
	Bip32DerivationInputType   InputType = 0x06
	FinalScriptSigType         InputType = 0x07
	FinalScriptWitnessType     InputType = 0x08
	Ripemd160PreimageType      InputType = 0x0a
	Sha256PreimageType         InputType = 0x0b
	Hash160PreimageType        InputType = 0x0c
	Hash256PreimageType        InputType = 0x0d
	PreviousTxidType           InputType = 0x0e
	OutputIndexType            InputType = 0x0f
	SequenceType               InputType = 0x10
	RequiredTimeLockTimeType   InputType = 0x11
	RequiredHeightLockTimeType InputType = 0x12
	TapKeySigType              InputType = 0x13
	TapScriptSigType           InputType = 0x14
	TapLeafScriptType          InputType = 0x15
	TapBip32DerivationInType   InputType = 0x16
	TapInternalKeyInputType    InputType = 0x17
	TapMerkleRootType          InputType = 0x18
	ProprietaryInputType       InputType = 0xFC
)

// OutputType is the key type of an entry in an output map.
type OutputType uint8

const (
	RedeemScriptOutputType    OutputType = 0x00
	WitnessScriptOutputType   OutputType = 0x01
	Bip32DerivationOutType    OutputType = 0x02
	AmountType                OutputType = 0x03
	ScriptType                OutputType = 0x04
	TapInternalKeyOutputType  OutputType = 0x05
	TapTreeType               OutputType = 0x06
	TapBip32DerivationOutType OutputType = 0x07
	ProprietaryOutputType     OutputType = 0xFC
)

// KeySource identifies where a public key was derived from: the fingerprint
// of the master key and the BIP-32 path below it.
type KeySource struct {
	Fingerprint uint32
	Path        []uint32
}

// Equal reports whether both key sources name the same origin.
func (k KeySource) Equal(other KeySource) bool {
	return k.Fingerprint == other.Fingerprint &&
		slices.Equal(k.Path, other.Path)
}

// TapKeySource is the origin of a taproot x-only key along with the hashes
// of the leaves the key is used in.
type TapKeySource struct {
	LeafHashes []chainhash.Hash
	KeySource
}

// TapScriptSigKey indexes a taproot script path signature.
type TapScriptSigKey struct {
	XOnlyPubKey [32]byte
	LeafHash    chainhash.Hash
}

// TapLeaf is a leaf script and its version, keyed by control block.
type TapLeaf struct {
	Script      []byte
	LeafVersion txscript.TapscriptLeafVersion
}

// InputFields holds the input fields whose presence is not tied to the
// document version.
type InputFields struct {
	NonWitnessUtxo     *wire.MsgTx
	WitnessUtxo        *wire.TxOut
	PartialSigs        map[string][]byte
	SighashType        fn.Option[txscript.SigHashType]
	RedeemScript       []byte
	WitnessScript      []byte
	Bip32Derivation    map[string]KeySource
	FinalScriptSig     fn.Option[[]byte]
	FinalScriptWitness wire.TxWitness
	Ripemd160Preimages map[[20]byte][]byte
	Sha256Preimages    map[[32]byte][]byte
	Hash160Preimages   map[[20]byte][]byte
	Hash256Preimages   map[[32]byte][]byte
	TapKeySig          []byte
	TapScriptSigs      map[TapScriptSigKey][]byte
	TapLeafScripts     map[string]TapLeaf
	TapBip32Derivation map[[32]byte]TapKeySource
	TapInternalKey     []byte
	TapMerkleRoot      []byte
	Proprietary        map[string][]byte
	Unknowns           map[string][]byte
}

// Input is an input map as it appears on the wire.
type Input struct {
	InputFields

	PreviousTxid fn.Option[chainhash.Hash]
	OutputIndex  fn.Option[uint32]
	Sequence     fn.Option[uint32]
	MinTime      fn.Option[uint32]
	MinHeight    fn.Option[uint32]
}

// OutputFields holds the output fields whose presence is not tied to the
// document version.
type OutputFields struct {
	RedeemScript       []byte
	WitnessScript      []byte
	Bip32Derivation    map[string]KeySource
	TapInternalKey     []byte
	TapTree            []byte
	TapBip32Derivation map[[32]byte]TapKeySource
	Proprietary        map[string][]byte
	Unknowns           map[string][]byte
}

// Output is an output map as it appears on the wire.
type Output struct {
	OutputFields

	Amount fn.Option[int64]
	Script fn.Option[[]byte]
}

// Packet is a complete document as it appears on the wire. For a version 0
// document UnsignedTx is set and the input and output counts are implied by
// it, for a version 2 document the counts are explicit.
type Packet struct {
	UnsignedTx       *wire.MsgTx
	Xpubs            map[string]KeySource
	TxVersion        fn.Option[int32]
	FallbackLockTime fn.Option[uint32]
	InputCount       fn.Option[uint64]
	OutputCount      fn.Option[uint64]
	TxModifiable     fn.Option[uint8]
	Version          fn.Option[uint32]
	Proprietary      map[string][]byte
	Unknowns         map[string][]byte

	Inputs  []Input
	Outputs []Output
}

// PsbtVersion returns the declared document version, zero when the version
// key is absent.
func (p *Packet) PsbtVersion() uint32 {
	return p.Version.UnwrapOr(0)
}

// Copy returns a deep copy of the input fields.
func (f *InputFields) Copy() InputFields {
	c := InputFields{
		NonWitnessUtxo:     copyTx(f.NonWitnessUtxo),
		WitnessUtxo:        copyTxOut(f.WitnessUtxo),
		PartialSigs:        cloneBytesMap(f.PartialSigs),
		SighashType:        f.SighashType,
		RedeemScript:       slices.Clone(f.RedeemScript),
		WitnessScript:      slices.Clone(f.WitnessScript),
		Bip32Derivation:    cloneKeySources(f.Bip32Derivation),
		FinalScriptSig:     fn.MapOption(cloneBytes)(f.FinalScriptSig),
		FinalScriptWitness: copyWitness(f.FinalScriptWitness),
		Ripemd160Preimages: cloneBytesMap(f.Ripemd160Preimages),
		Sha256Preimages:    cloneBytesMap(f.Sha256Preimages),
		Hash160Preimages:   cloneBytesMap(f.Hash160Preimages),
		Hash256Preimages:   cloneBytesMap(f.Hash256Preimages),
		TapKeySig:          slices.Clone(f.TapKeySig),
		TapScriptSigs:      cloneBytesMap(f.TapScriptSigs),
		TapBip32Derivation: cloneTapKeySources(f.TapBip32Derivation),
		TapInternalKey:     slices.Clone(f.TapInternalKey),
		TapMerkleRoot:      slices.Clone(f.TapMerkleRoot),
		Proprietary:        cloneBytesMap(f.Proprietary),
		Unknowns:           cloneBytesMap(f.Unknowns),
	}

	if f.TapLeafScripts != nil {
		c.TapLeafScripts = make(map[string]TapLeaf, len(f.TapLeafScripts))
		for k, leaf := range f.TapLeafScripts {
			c.TapLeafScripts[k] = TapLeaf{
				Script:      slices.Clone(leaf.Script),
				LeafVersion: leaf.LeafVersion,
			}
		}
	}

	return c
}

// Copy returns a deep copy of the output fields.
func (f *OutputFields) Copy() OutputFields {
	return OutputFields{
		RedeemScript:       slices.Clone(f.RedeemScript),
		WitnessScript:      slices.Clone(f.WitnessScript),
		Bip32Derivation:    cloneKeySources(f.Bip32Derivation),
		TapInternalKey:     slices.Clone(f.TapInternalKey),
		TapTree:            slices.Clone(f.TapTree),
		TapBip32Derivation: cloneTapKeySources(f.TapBip32Derivation),
		Proprietary:        cloneBytesMap(f.Proprietary),
		Unknowns:           cloneBytesMap(f.Unknowns),
	}
}

func cloneBytes(b []byte) []byte {
	return slices.Clone(b)
}

func cloneBytesMap[K comparable](m map[K][]byte) map[K][]byte {
	if m == nil {
		return nil
	}

	c := make(map[K][]byte, len(m))
	for k, v := range m {
		c[k] = slices.Clone(v)
	}

	return c
}

// CloneKeySource returns a deep copy of the key source.
func CloneKeySource(k KeySource) KeySource {
	return KeySource{
		Fingerprint: k.Fingerprint,
		Path:        slices.Clone(k.Path),
	}
}

func cloneKeySources(m map[string]KeySource) map[string]KeySource {
	if m == nil {
		return nil
	}

	c := maps.Clone(m)
	for k, v := range c {
		c[k] = CloneKeySource(v)
	}

	return c
}

func cloneTapKeySources(
	m map[[32]byte]TapKeySource) map[[32]byte]TapKeySource {

	if m == nil {
		return nil
	}

	c := make(map[[32]byte]TapKeySource, len(m))
	for k, v := range m {
		c[k] = TapKeySource{
			LeafHashes: slices.Clone(v.LeafHashes),
			KeySource:  CloneKeySource(v.KeySource),
		}
	}

	return c
}

func copyTx(tx *wire.MsgTx) *wire.MsgTx {
	if tx == nil {
		return nil
	}

	return tx.Copy()
}

func copyTxOut(out *wire.TxOut) *wire.TxOut {
	if out == nil {
		return nil
	}

	return wire.NewTxOut(out.Value, slices.Clone(out.PkScript))
}

func copyWitness(w wire.TxWitness) wire.TxWitness {
	if w == nil {
		return nil
	}

	c := make(wire.TxWitness, len(w))
	for i, item := range w {
		c[i] = slices.Clone(item)
	}

	return c
}
