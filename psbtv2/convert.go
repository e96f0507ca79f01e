// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/rawpsbt"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ToStrict converts a wire level version 2 document into the strict model.
// Every missing required field is reported; the per input and per output
// failures are wrapped in an IndexedError and joined.
func ToStrict(raw *rawpsbt.Packet) (*Packet, error) {
	if v := raw.PsbtVersion(); v != 2 {
		return nil, fmt.Errorf("%w: %d, want 2", ErrUnexpectedVersion, v)
	}

	if err := checkStrict(raw); err != nil {
		return nil, err
	}

	p := &Packet{
		TxVersion:        raw.TxVersion.UnwrapOr(0),
		FallbackLockTime: raw.FallbackLockTime,
		Modifiable: TxModifiableFlags(
			raw.TxModifiable.UnwrapOr(0),
		),
		Xpubs:       cloneKeySources(raw.Xpubs),
		Proprietary: cloneBytesMap(raw.Proprietary),
		Unknowns:    cloneBytesMap(raw.Unknowns),
		Inputs:      make([]Input, len(raw.Inputs)),
		Outputs:     make([]Output, len(raw.Outputs)),
	}

	for i := range raw.Inputs {
		in := &raw.Inputs[i]
		p.Inputs[i] = Input{
			PreviousTxid:     in.PreviousTxid.UnwrapOr(chainhash.Hash{}),
			SpentOutputIndex: in.OutputIndex.UnwrapOr(0),
			Sequence:         in.Sequence,
			MinTime:          in.MinTime,
			MinHeight:        in.MinHeight,
			InputFields:      in.InputFields.Copy(),
		}
	}

	for i := range raw.Outputs {
		out := &raw.Outputs[i]
		p.Outputs[i] = Output{
			Amount:       btcutil.Amount(out.Amount.UnwrapOr(0)),
			Script:       clone(out.Script.UnwrapOr(nil)),
			OutputFields: out.OutputFields.Copy(),
		}
	}

	return p, nil
}

func checkStrict(raw *rawpsbt.Packet) error {
	var errs []error
	if raw.UnsignedTx != nil {
		errs = append(errs, ErrHasUnsignedTx)
	}
	if raw.TxVersion.IsNone() {
		errs = append(errs, ErrMissingTxVersion)
	}

	checkCount := func(count fn.Option[uint64], n int, missing error) {
		switch {
		case count.IsNone():
			errs = append(errs, missing)

		case count.UnwrapOr(0) != uint64(n):
			errs = append(errs, fmt.Errorf("%w: declared %d, have %d",
				ErrCountMismatch, count.UnwrapOr(0), n))
		}
	}
	checkCount(raw.InputCount, len(raw.Inputs), ErrMissingInputCount)
	checkCount(raw.OutputCount, len(raw.Outputs), ErrMissingOutputCount)

	for i := range raw.Inputs {
		in := &raw.Inputs[i]
		if in.PreviousTxid.IsNone() {
			errs = append(errs, inputError(i, ErrMissingPreviousTxid))
		}
		if in.OutputIndex.IsNone() {
			errs = append(
				errs, inputError(i, ErrMissingSpentOutputIndex),
			)
		}
	}

	for i := range raw.Outputs {
		out := &raw.Outputs[i]
		if out.Amount.IsNone() {
			errs = append(errs, outputError(i, ErrMissingAmount))
		}
		if out.Script.IsNone() {
			errs = append(errs, outputError(i, ErrMissingScriptPubkey))
		}
	}

	return errors.Join(errs...)
}

// ToRaw converts the document into its wire level version 2 form. The
// modifiable flags are always written.
func (p *Packet) ToRaw() *rawpsbt.Packet {
	raw := &rawpsbt.Packet{
		Xpubs:            cloneKeySources(p.Xpubs),
		TxVersion:        fn.Some(p.TxVersion),
		FallbackLockTime: p.FallbackLockTime,
		InputCount:       fn.Some(uint64(len(p.Inputs))),
		OutputCount:      fn.Some(uint64(len(p.Outputs))),
		TxModifiable:     fn.Some(uint8(p.Modifiable)),
		Version:          fn.Some(uint32(2)),
		Proprietary:      cloneBytesMap(p.Proprietary),
		Unknowns:         cloneBytesMap(p.Unknowns),
		Inputs:           make([]rawpsbt.Input, len(p.Inputs)),
		Outputs:          make([]rawpsbt.Output, len(p.Outputs)),
	}

	for i := range p.Inputs {
		in := &p.Inputs[i]
		raw.Inputs[i] = rawpsbt.Input{
			InputFields:  in.InputFields.Copy(),
			PreviousTxid: fn.Some(in.PreviousTxid),
			OutputIndex:  fn.Some(in.SpentOutputIndex),
			Sequence:     in.Sequence,
			MinTime:      in.MinTime,
			MinHeight:    in.MinHeight,
		}
	}

	for i := range p.Outputs {
		out := &p.Outputs[i]
		raw.Outputs[i] = rawpsbt.Output{
			OutputFields: out.OutputFields.Copy(),
			Amount:       fn.Some(int64(out.Amount)),
			Script:       fn.Some(clone(out.Script)),
		}
	}

	return raw
}

// ToLegacy converts a wire level version 0 document into a btcutil packet.
// Every version 2 only field that is present is reported.
func ToLegacy(raw *rawpsbt.Packet) (*psbt.Packet, error) {
	if v := raw.PsbtVersion(); v != 0 {
		return nil, fmt.Errorf("%w: %d, want 0", ErrUnexpectedVersion, v)
	}

	if err := checkLegacy(raw); err != nil {
		return nil, err
	}

	b, err := raw.Bytes()
	if err != nil {
		return nil, err
	}

	return psbt.NewFromRawBytes(bytes.NewReader(b), false)
}

func checkLegacy(raw *rawpsbt.Packet) error {
	var errs []error
	if raw.UnsignedTx == nil {
		errs = append(errs, ErrMissingUnsignedTx)
	}

	present := []struct {
		set bool
		err error
	}{
		{raw.TxVersion.IsSome(), ErrHasTxVersion},
		{raw.FallbackLockTime.IsSome(), ErrHasFallbackLockTime},
		{raw.InputCount.IsSome(), ErrHasInputCount},
		{raw.OutputCount.IsSome(), ErrHasOutputCount},
		{raw.TxModifiable.IsSome(), ErrHasTxModifiable},
	}
	for _, field := range present {
		if field.set {
			errs = append(errs, field.err)
		}
	}

	for i := range raw.Inputs {
		in := &raw.Inputs[i]
		inputFields := []struct {
			set bool
			err error
		}{
			{in.PreviousTxid.IsSome(), ErrHasPreviousTxid},
			{in.OutputIndex.IsSome(), ErrHasSpentOutputIndex},
			{in.Sequence.IsSome(), ErrHasSequence},
			{in.MinTime.IsSome(), ErrHasMinTime},
			{in.MinHeight.IsSome(), ErrHasMinHeight},
		}
		for _, field := range inputFields {
			if field.set {
				errs = append(errs, inputError(i, field.err))
			}
		}
	}

	for i := range raw.Outputs {
		out := &raw.Outputs[i]
		if out.Amount.IsSome() {
			errs = append(errs, outputError(i, ErrHasAmount))
		}
		if out.Script.IsSome() {
			errs = append(errs, outputError(i, ErrHasScriptPubkey))
		}
	}

	return errors.Join(errs...)
}

// FromLegacy converts a btcutil packet into its wire level form.
func FromLegacy(legacy *psbt.Packet) (*rawpsbt.Packet, error) {
	var b bytes.Buffer
	if err := legacy.Serialize(&b); err != nil {
		return nil, err
	}

	raw, err := rawpsbt.Decode(b.Bytes())
	if err != nil {
		return nil, err
	}

	if v := raw.PsbtVersion(); v != 0 {
		return nil, fmt.Errorf("%w: %d, want 0", ErrUnexpectedVersion, v)
	}

	return raw, nil
}

// Legacy returns the version 0 form of the document. The unsigned
// transaction carries the resolved lock time, so this fails when the inputs'
// lock time requirements conflict.
func (p *Packet) Legacy() (*psbt.Packet, error) {
	tx, err := p.UnsignedTx()
	if err != nil {
		return nil, err
	}

	raw := &rawpsbt.Packet{
		UnsignedTx:  tx,
		Xpubs:       cloneKeySources(p.Xpubs),
		Proprietary: cloneBytesMap(p.Proprietary),
		Unknowns:    cloneBytesMap(p.Unknowns),
		Inputs:      make([]rawpsbt.Input, len(p.Inputs)),
		Outputs:     make([]rawpsbt.Output, len(p.Outputs)),
	}
	for i := range p.Inputs {
		raw.Inputs[i].InputFields = p.Inputs[i].InputFields.Copy()
	}
	for i := range p.Outputs {
		raw.Outputs[i].OutputFields = p.Outputs[i].OutputFields.Copy()
	}

	return ToLegacy(raw)
}

// FromLegacyPacket upgrades a btcutil packet into the strict model. The
// outpoints, sequences and outputs come from the unsigned transaction. A
// final sequence and a zero lock time are left unset. The result has no
// modifiable flags.
func FromLegacyPacket(legacy *psbt.Packet) (*Packet, error) {
	raw, err := FromLegacy(legacy)
	if err != nil {
		return nil, err
	}

	tx := raw.UnsignedTx
	p := &Packet{
		TxVersion:   tx.Version,
		Xpubs:       raw.Xpubs,
		Proprietary: raw.Proprietary,
		Unknowns:    raw.Unknowns,
		Inputs:      make([]Input, len(tx.TxIn)),
		Outputs:     make([]Output, len(tx.TxOut)),
	}
	if tx.LockTime != 0 {
		p.FallbackLockTime = fn.Some(tx.LockTime)
	}

	for i, txIn := range tx.TxIn {
		p.Inputs[i] = Input{
			PreviousTxid:     txIn.PreviousOutPoint.Hash,
			SpentOutputIndex: txIn.PreviousOutPoint.Index,
			InputFields:      raw.Inputs[i].InputFields,
		}
		if txIn.Sequence != wire.MaxTxInSequenceNum {
			p.Inputs[i].Sequence = fn.Some(txIn.Sequence)
		}
	}

	for i, txOut := range tx.TxOut {
		p.Outputs[i] = Output{
			Amount:       btcutil.Amount(txOut.Value),
			Script:       txOut.PkScript,
			OutputFields: raw.Outputs[i].OutputFields,
		}
	}

	log.Debugf("Upgraded legacy psbt %v to version 2",
		newLogClosure(func() string {
			return tx.TxHash().String()
		}))

	return p, nil
}
