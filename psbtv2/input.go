// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// FundingUtxo returns the output the input spends. The witness UTXO is
// preferred, otherwise the spent output is looked up in the non-witness
// UTXO.
func (in *Input) FundingUtxo() (*wire.TxOut, error) {
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}

	if in.NonWitnessUtxo == nil {
		return nil, ErrMissingUtxo
	}

	numOuts := len(in.NonWitnessUtxo.TxOut)
	if int(in.SpentOutputIndex) >= numOuts {
		return nil, &OutOfBoundsError{
			Index: int(in.SpentOutputIndex),
			Len:   numOuts,
		}
	}

	return in.NonWitnessUtxo.TxOut[in.SpentOutputIndex], nil
}

// SetNonWitnessUtxo attaches the full transaction the input spends from. The
// transaction must hash to the input's previous txid and hold the spent
// output.
func (in *Input) SetNonWitnessUtxo(tx *wire.MsgTx) error {
	if tx == nil {
		return ErrNilUtxo
	}

	txid := tx.TxHash()
	if txid != in.PreviousTxid {
		return fmt.Errorf("%w: got %v, want %v",
			ErrNonWitnessUtxoMismatch, txid, in.PreviousTxid)
	}

	if int(in.SpentOutputIndex) >= len(tx.TxOut) {
		return &OutOfBoundsError{
			Index: int(in.SpentOutputIndex),
			Len:   len(tx.TxOut),
		}
	}

	in.NonWitnessUtxo = tx.Copy()

	return nil
}

// IsFinalized reports whether the input carries its final scripts. A
// witness funded input needs a non-empty final witness, any other input a
// final scriptSig or witness.
func (in *Input) IsFinalized() bool {
	if in.WitnessUtxo != nil {
		return len(in.FinalScriptWitness) > 0
	}

	return in.FinalScriptSig.IsSome() || len(in.FinalScriptWitness) > 0
}

// AddRipemd160Preimage records preimage under its RIPEMD160 hash and returns
// the hash.
func (in *Input) AddRipemd160Preimage(preimage []byte) [20]byte {
	h := ripemd160.New()
	h.Write(preimage)

	var hash [20]byte
	copy(hash[:], h.Sum(nil))

	if in.Ripemd160Preimages == nil {
		in.Ripemd160Preimages = make(map[[20]byte][]byte)
	}
	in.Ripemd160Preimages[hash] = clone(preimage)

	return hash
}

// AddSha256Preimage records preimage under its SHA256 hash and returns the
// hash.
func (in *Input) AddSha256Preimage(preimage []byte) [32]byte {
	hash := sha256.Sum256(preimage)

	if in.Sha256Preimages == nil {
		in.Sha256Preimages = make(map[[32]byte][]byte)
	}
	in.Sha256Preimages[hash] = clone(preimage)

	return hash
}

// AddHash160Preimage records preimage under its HASH160 and returns the
// hash.
func (in *Input) AddHash160Preimage(preimage []byte) [20]byte {
	var hash [20]byte
	copy(hash[:], btcutil.Hash160(preimage))

	if in.Hash160Preimages == nil {
		in.Hash160Preimages = make(map[[20]byte][]byte)
	}
	in.Hash160Preimages[hash] = clone(preimage)

	return hash
}

// AddHash256Preimage records preimage under its double SHA256 and returns
// the hash.
func (in *Input) AddHash256Preimage(preimage []byte) [32]byte {
	hash := chainhash.DoubleHashH(preimage)

	if in.Hash256Preimages == nil {
		in.Hash256Preimages = make(map[[32]byte][]byte)
	}
	in.Hash256Preimages[hash] = clone(preimage)

	return hash
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append(make([]byte, 0, len(b)), b...)
}
