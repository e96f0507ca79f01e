// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// size is a transaction size stored in weight units.
type size struct {
	wu uint64
}

// ToWU returns the size in weight units.
func (s size) ToWU() WeightUnit {
	return WeightUnit{s}
}

// ToVB returns the size in virtual bytes.
func (s size) ToVB() VByte {
	return VByte{s}
}

// WeightUnit is a size in weight units: three times the size without
// witness plus the full BIP-144 size.
type WeightUnit struct {
	size
}

// NewWeightUnit returns a size of wu weight units.
func NewWeightUnit(wu uint64) WeightUnit {
	return WeightUnit{size{wu: wu}}
}

// String renders the size in wu.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", w.wu)
}

// VByte is a size in virtual bytes, a quarter of a weight unit.
type VByte struct {
	size
}

// NewVByte returns a size of vb virtual bytes.
func NewVByte(vb uint64) VByte {
	return VByte{size{wu: vb * blockchain.WitnessScaleFactor}}
}

// VBytes returns the size in whole virtual bytes, rounded up.
func (v VByte) VBytes() uint64 {
	return (v.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// String renders the size in vb.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", v.VBytes())
}

// TxWeight returns the weight of tx including its witnesses.
func TxWeight(tx *wire.MsgTx) WeightUnit {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))

	return NewWeightUnit(uint64(weight))
}
