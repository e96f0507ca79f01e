// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package psbtv2 holds the strict version 2 model of a partially signed
// bitcoin transaction together with the conversions to and from the wire
// level and legacy (version 0) shapes, the lock time resolver and the
// combiner.
//
// Every field BIP-370 makes required for a version 2 document is a plain
// value in this model. Documents are values: every operation that derives a
// new document returns a fresh copy and never aliases the inputs.
package psbtv2

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/rawpsbt"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// KeySource is the origin of a public key.
type KeySource = rawpsbt.KeySource

// TapKeySource is the origin of a taproot x-only key.
type TapKeySource = rawpsbt.TapKeySource

// TapScriptSigKey indexes a taproot script path signature.
type TapScriptSigKey = rawpsbt.TapScriptSigKey

// TapLeaf is a taproot leaf script and its version.
type TapLeaf = rawpsbt.TapLeaf

// Input is one input of a version 2 document. The outpoint it spends is
// always present, the version independent fields live in the embedded
// InputFields.
type Input struct {
	// PreviousTxid is the id of the transaction holding the spent output.
	PreviousTxid chainhash.Hash

	// SpentOutputIndex is the index of the spent output.
	SpentOutputIndex uint32

	// Sequence is the input sequence number. When absent the final
	// sequence 0xffffffff is used.
	Sequence fn.Option[uint32]

	// MinTime is the minimum time based lock time the input requires.
	MinTime fn.Option[uint32]

	// MinHeight is the minimum height based lock time the input requires.
	MinHeight fn.Option[uint32]

	rawpsbt.InputFields
}

// NewInput returns an input spending the given outpoint.
func NewInput(prevOut wire.OutPoint) Input {
	return Input{
		PreviousTxid:     prevOut.Hash,
		SpentOutputIndex: prevOut.Index,
	}
}

// OutPoint returns the outpoint the input spends.
func (in *Input) OutPoint() wire.OutPoint {
	return wire.OutPoint{
		Hash:  in.PreviousTxid,
		Index: in.SpentOutputIndex,
	}
}

// SequenceOrDefault returns the sequence number, or the final sequence when
// none is set.
func (in *Input) SequenceOrDefault() uint32 {
	return in.Sequence.UnwrapOr(wire.MaxTxInSequenceNum)
}

// unsignedTxIn returns the transaction input this input contributes to the
// unsigned transaction.
func (in *Input) unsignedTxIn() *wire.TxIn {
	prevOut := in.OutPoint()
	txIn := wire.NewTxIn(&prevOut, nil, nil)
	txIn.Sequence = in.SequenceOrDefault()

	return txIn
}

// Copy returns a deep copy of the input.
func (in *Input) Copy() Input {
	return Input{
		PreviousTxid:     in.PreviousTxid,
		SpentOutputIndex: in.SpentOutputIndex,
		Sequence:         in.Sequence,
		MinTime:          in.MinTime,
		MinHeight:        in.MinHeight,
		InputFields:      in.InputFields.Copy(),
	}
}

// Output is one output of a version 2 document.
type Output struct {
	// Amount is the value of the output.
	Amount btcutil.Amount

	// Script is the output script.
	Script []byte

	rawpsbt.OutputFields
}

// NewOutput returns an output paying amount to script.
func NewOutput(amount btcutil.Amount, script []byte) Output {
	return Output{
		Amount: amount,
		Script: bytes.Clone(script),
	}
}

// TxOut returns the transaction output described by the output.
func (out *Output) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(out.Amount), bytes.Clone(out.Script))
}

// Copy returns a deep copy of the output.
func (out *Output) Copy() Output {
	return Output{
		Amount:       out.Amount,
		Script:       bytes.Clone(out.Script),
		OutputFields: out.OutputFields.Copy(),
	}
}

// Packet is a version 2 document. The input and output counts are the
// lengths of Inputs and Outputs.
type Packet struct {
	// TxVersion is the version of the transaction being built.
	TxVersion int32

	// FallbackLockTime is the lock time used when no input requires one.
	FallbackLockTime fn.Option[uint32]

	// Modifiable records which parts of the transaction may still change.
	Modifiable TxModifiableFlags

	// Xpubs maps the 78 byte serialization of an extended public key to
	// its origin.
	Xpubs map[string]KeySource

	// Proprietary holds the proprietary global entries keyed by key data.
	Proprietary map[string][]byte

	// Unknowns holds unknown global entries keyed by the full key.
	Unknowns map[string][]byte

	Inputs  []Input
	Outputs []Output
}

// InputCount returns the number of inputs.
func (p *Packet) InputCount() int {
	return len(p.Inputs)
}

// OutputCount returns the number of outputs.
func (p *Packet) OutputCount() int {
	return len(p.Outputs)
}

// Input returns a pointer to the input at idx.
func (p *Packet) Input(idx int) (*Input, error) {
	if idx < 0 || idx >= len(p.Inputs) {
		return nil, &OutOfBoundsError{Index: idx, Len: len(p.Inputs)}
	}

	return &p.Inputs[idx], nil
}

// Output returns a pointer to the output at idx.
func (p *Packet) Output(idx int) (*Output, error) {
	if idx < 0 || idx >= len(p.Outputs) {
		return nil, &OutOfBoundsError{Index: idx, Len: len(p.Outputs)}
	}

	return &p.Outputs[idx], nil
}

// Copy returns a deep copy of the document.
func (p *Packet) Copy() *Packet {
	c := &Packet{
		TxVersion:        p.TxVersion,
		FallbackLockTime: p.FallbackLockTime,
		Modifiable:       p.Modifiable,
		Xpubs:            cloneKeySources(p.Xpubs),
		Proprietary:      cloneBytesMap(p.Proprietary),
		Unknowns:         cloneBytesMap(p.Unknowns),
		Inputs:           make([]Input, len(p.Inputs)),
		Outputs:          make([]Output, len(p.Outputs)),
	}

	for i := range p.Inputs {
		c.Inputs[i] = p.Inputs[i].Copy()
	}
	for i := range p.Outputs {
		c.Outputs[i] = p.Outputs[i].Copy()
	}

	return c
}

// UnsignedTx assembles the unsigned transaction the document describes. It
// fails when the inputs' lock time requirements conflict.
func (p *Packet) UnsignedTx() (*wire.MsgTx, error) {
	lockTime, err := p.DetermineLockTime()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(p.TxVersion)
	tx.LockTime = lockTime
	for i := range p.Inputs {
		tx.AddTxIn(p.Inputs[i].unsignedTxIn())
	}
	for i := range p.Outputs {
		tx.AddTxOut(p.Outputs[i].TxOut())
	}

	return tx, nil
}

// ID returns the identifier of the document: the txid of the unsigned
// transaction with every input sequence set to zero. It stays stable while
// signers adjust sequence numbers.
func (p *Packet) ID() (chainhash.Hash, error) {
	tx, err := p.UnsignedTx()
	if err != nil {
		return chainhash.Hash{}, err
	}

	for _, txIn := range tx.TxIn {
		txIn.Sequence = 0
	}

	return tx.TxHash(), nil
}

// HasOutPoint reports whether any input spends prevOut.
func (p *Packet) HasOutPoint(prevOut wire.OutPoint) bool {
	for i := range p.Inputs {
		if p.Inputs[i].OutPoint() == prevOut {
			return true
		}
	}

	return false
}

// NewFromRawBytes decodes a serialized document. Version 2 documents are
// converted directly, version 0 documents are upgraded.
func NewFromRawBytes(r io.Reader, b64 bool) (*Packet, error) {
	raw, err := rawpsbt.NewFromRawBytes(r, b64)
	if err != nil {
		return nil, err
	}

	if raw.PsbtVersion() == 0 {
		legacy, err := ToLegacy(raw)
		if err != nil {
			return nil, err
		}

		return FromLegacyPacket(legacy)
	}

	return ToStrict(raw)
}

// Serialize writes the version 2 serialization of the document to w.
func (p *Packet) Serialize(w io.Writer) error {
	return p.ToRaw().Serialize(w)
}

// B64Encode returns the base64 encoding of the version 2 serialization.
func (p *Packet) B64Encode() (string, error) {
	return p.ToRaw().B64Encode()
}

// SerializeLegacy writes the version 0 serialization of the document to w.
func (p *Packet) SerializeLegacy(w io.Writer) error {
	legacy, err := p.Legacy()
	if err != nil {
		return err
	}

	return legacy.Serialize(w)
}
