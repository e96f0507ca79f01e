// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawpsbt

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// Serialize writes the binary form of the document to w. Entries are written
// in ascending key order so two equal documents always serialize to the same
// bytes.
func (p *Packet) Serialize(w io.Writer) error {
	numInputs, numOutputs, err := p.mapCounts()
	if err != nil {
		return err
	}

	if numInputs != uint64(len(p.Inputs)) ||
		numOutputs != uint64(len(p.Outputs)) {

		return fmt.Errorf("%w: declared %d inputs and %d outputs, "+
			"document has %d and %d", ErrCountMismatch, numInputs,
			numOutputs, len(p.Inputs), len(p.Outputs))
	}

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}

	if err := p.encodeGlobals(w); err != nil {
		return err
	}

	for i := range p.Inputs {
		if err := p.Inputs[i].encode(w); err != nil {
			return &KeyError{Map: mapInput, Index: i, Err: err}
		}
	}

	for i := range p.Outputs {
		if err := p.Outputs[i].encode(w); err != nil {
			return &KeyError{Map: mapOutput, Index: i, Err: err}
		}
	}

	return nil
}

// Bytes returns the binary form of the document.
func (p *Packet) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if err := p.Serialize(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// B64Encode returns the base64 form of the document.
func (p *Packet) B64Encode() (string, error) {
	b, err := p.Bytes()
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func (p *Packet) encodeGlobals(w io.Writer) error {
	if p.UnsignedTx != nil {
		var tx bytes.Buffer
		if err := p.UnsignedTx.SerializeNoWitness(&tx); err != nil {
			return err
		}

		err := writeKV(w, uint8(UnsignedTxType), nil, tx.Bytes())
		if err != nil {
			return err
		}
	}

	for _, k := range sortedByKey(p.Xpubs, stringKey) {
		err := writeKV(
			w, uint8(XpubType), []byte(k),
			serializeKeySource(p.Xpubs[k]),
		)
		if err != nil {
			return err
		}
	}

	var err error
	p.TxVersion.WhenSome(func(v int32) {
		err = writeKV(w, uint8(TxVersionType), nil, uint32Bytes(uint32(v)))
	})
	if err != nil {
		return err
	}

	p.FallbackLockTime.WhenSome(func(v uint32) {
		err = writeKV(w, uint8(FallbackLockTimeType), nil, uint32Bytes(v))
	})
	if err != nil {
		return err
	}

	p.InputCount.WhenSome(func(n uint64) {
		err = writeKV(w, uint8(InputCountType), nil, varIntBytes(n))
	})
	if err != nil {
		return err
	}

	p.OutputCount.WhenSome(func(n uint64) {
		err = writeKV(w, uint8(OutputCountType), nil, varIntBytes(n))
	})
	if err != nil {
		return err
	}

	p.TxModifiable.WhenSome(func(f uint8) {
		err = writeKV(w, uint8(TxModifiableType), nil, []byte{f})
	})
	if err != nil {
		return err
	}

	p.Version.WhenSome(func(v uint32) {
		err = writeKV(w, uint8(VersionType), nil, uint32Bytes(v))
	})
	if err != nil {
		return err
	}

	err = writeProprietary(w, uint8(ProprietaryGlobalType), p.Proprietary)
	if err != nil {
		return err
	}

	if err := writeUnknowns(w, p.Unknowns); err != nil {
		return err
	}

	return writeSeparator(w)
}

// kvWriter accumulates the first error of a sequence of writes so the
// encoders can list the entries of a map in key order without checking
// after every single one.
type kvWriter struct {
	w   io.Writer
	err error
}

func (k *kvWriter) write(keyType uint8, keyData, value []byte) {
	if k.err != nil {
		return
	}
	k.err = writeKV(k.w, keyType, keyData, value)
}

func (k *kvWriter) fail(err error) {
	if k.err == nil {
		k.err = err
	}
}

//nolint:funlen
func (in *Input) encode(w io.Writer) error {
	kw := &kvWriter{w: w}

	if in.NonWitnessUtxo != nil {
		var tx bytes.Buffer
		kw.fail(in.NonWitnessUtxo.Serialize(&tx))
		kw.write(uint8(NonWitnessUtxoType), nil, tx.Bytes())
	}

	if in.WitnessUtxo != nil {
		out, err := serializeTxOut(in.WitnessUtxo)
		kw.fail(err)
		kw.write(uint8(WitnessUtxoType), nil, out)
	}

	for _, k := range sortedByKey(in.PartialSigs, stringKey) {
		kw.write(uint8(PartialSigType), []byte(k), in.PartialSigs[k])
	}

	in.SighashType.WhenSome(func(t txscript.SigHashType) {
		kw.write(uint8(SighashType), nil, uint32Bytes(uint32(t)))
	})

	if in.RedeemScript != nil {
		kw.write(uint8(RedeemScriptInputType), nil, in.RedeemScript)
	}

	if in.WitnessScript != nil {
		kw.write(uint8(WitnessScriptInputType), nil, in.WitnessScript)
	}

	for _, k := range sortedByKey(in.Bip32Derivation, stringKey) {
		kw.write(
			uint8(Bip32DerivationInputType), []byte(k),
			serializeKeySource(in.Bip32Derivation[k]),
		)
	}

	in.FinalScriptSig.WhenSome(func(sigScript []byte) {
		kw.write(uint8(FinalScriptSigType), nil, sigScript)
	})

	if in.FinalScriptWitness != nil {
		witness, err := SerializeTxWitness(in.FinalScriptWitness)
		kw.fail(err)
		kw.write(uint8(FinalScriptWitnessType), nil, witness)
	}

	for _, k := range sortedByKey(in.Ripemd160Preimages, hash20Key) {
		kw.write(
			uint8(Ripemd160PreimageType), k[:],
			in.Ripemd160Preimages[k],
		)
	}

	for _, k := range sortedByKey(in.Sha256Preimages, hash32Key) {
		kw.write(uint8(Sha256PreimageType), k[:], in.Sha256Preimages[k])
	}

	for _, k := range sortedByKey(in.Hash160Preimages, hash20Key) {
		kw.write(
			uint8(Hash160PreimageType), k[:], in.Hash160Preimages[k],
		)
	}

	for _, k := range sortedByKey(in.Hash256Preimages, hash32Key) {
		kw.write(
			uint8(Hash256PreimageType), k[:], in.Hash256Preimages[k],
		)
	}

	in.PreviousTxid.WhenSome(func(txid chainhash.Hash) {
		kw.write(uint8(PreviousTxidType), nil, txid[:])
	})

	in.OutputIndex.WhenSome(func(idx uint32) {
		kw.write(uint8(OutputIndexType), nil, uint32Bytes(idx))
	})

	in.Sequence.WhenSome(func(seq uint32) {
		kw.write(uint8(SequenceType), nil, uint32Bytes(seq))
	})

	in.MinTime.WhenSome(func(t uint32) {
		kw.write(uint8(RequiredTimeLockTimeType), nil, uint32Bytes(t))
	})

	in.MinHeight.WhenSome(func(h uint32) {
		kw.write(uint8(RequiredHeightLockTimeType), nil, uint32Bytes(h))
	})

	if in.TapKeySig != nil {
		kw.write(uint8(TapKeySigType), nil, in.TapKeySig)
	}

	for _, k := range sortedByKey(in.TapScriptSigs, tapScriptSigKeyBytes) {
		kw.write(
			uint8(TapScriptSigType), tapScriptSigKeyBytes(k),
			in.TapScriptSigs[k],
		)
	}

	for _, k := range sortedByKey(in.TapLeafScripts, stringKey) {
		leaf := in.TapLeafScripts[k]
		value := make([]byte, 0, len(leaf.Script)+1)
		value = append(value, leaf.Script...)
		value = append(value, byte(leaf.LeafVersion))
		kw.write(uint8(TapLeafScriptType), []byte(k), value)
	}

	for _, k := range sortedByKey(in.TapBip32Derivation, hash32Key) {
		kw.write(
			uint8(TapBip32DerivationInType), k[:],
			serializeTapKeySource(in.TapBip32Derivation[k]),
		)
	}

	if in.TapInternalKey != nil {
		kw.write(uint8(TapInternalKeyInputType), nil, in.TapInternalKey)
	}

	if in.TapMerkleRoot != nil {
		kw.write(uint8(TapMerkleRootType), nil, in.TapMerkleRoot)
	}

	if kw.err != nil {
		return kw.err
	}

	err := writeProprietary(w, uint8(ProprietaryInputType), in.Proprietary)
	if err != nil {
		return err
	}

	if err := writeUnknowns(w, in.Unknowns); err != nil {
		return err
	}

	return writeSeparator(w)
}

func (out *Output) encode(w io.Writer) error {
	kw := &kvWriter{w: w}

	if out.RedeemScript != nil {
		kw.write(uint8(RedeemScriptOutputType), nil, out.RedeemScript)
	}

	if out.WitnessScript != nil {
		kw.write(uint8(WitnessScriptOutputType), nil, out.WitnessScript)
	}

	for _, k := range sortedByKey(out.Bip32Derivation, stringKey) {
		kw.write(
			uint8(Bip32DerivationOutType), []byte(k),
			serializeKeySource(out.Bip32Derivation[k]),
		)
	}

	out.Amount.WhenSome(func(amt int64) {
		kw.write(uint8(AmountType), nil, uint64Bytes(uint64(amt)))
	})

	out.Script.WhenSome(func(script []byte) {
		kw.write(uint8(ScriptType), nil, script)
	})

	if out.TapInternalKey != nil {
		kw.write(uint8(TapInternalKeyOutputType), nil, out.TapInternalKey)
	}

	if out.TapTree != nil {
		kw.write(uint8(TapTreeType), nil, out.TapTree)
	}

	for _, k := range sortedByKey(out.TapBip32Derivation, hash32Key) {
		kw.write(
			uint8(TapBip32DerivationOutType), k[:],
			serializeTapKeySource(out.TapBip32Derivation[k]),
		)
	}

	if kw.err != nil {
		return kw.err
	}

	err := writeProprietary(
		w, uint8(ProprietaryOutputType), out.Proprietary,
	)
	if err != nil {
		return err
	}

	if err := writeUnknowns(w, out.Unknowns); err != nil {
		return err
	}

	return writeSeparator(w)
}

func writeProprietary(w io.Writer, keyType uint8,
	entries map[string][]byte) error {

	for _, k := range sortedByKey(entries, stringKey) {
		if err := writeKV(w, keyType, []byte(k), entries[k]); err != nil {
			return err
		}
	}

	return nil
}

// writeUnknowns writes entries whose stored key already includes the key
// type byte.
func writeUnknowns(w io.Writer, entries map[string][]byte) error {
	for _, k := range sortedByKey(entries, stringKey) {
		if len(k) == 0 {
			return fmt.Errorf("%w: empty unknown key",
				ErrInvalidKeyData)
		}

		err := writeKV(w, k[0], []byte(k[1:]), entries[k])
		if err != nil {
			return err
		}
	}

	return nil
}
