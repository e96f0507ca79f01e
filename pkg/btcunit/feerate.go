// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit holds the fee rate and transaction size units used to
// sanity check the fee of an extracted transaction.
package btcunit

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

// kilo scales the kilo units.
const kilo = 1000

// feeRate is a fee rate stored exactly as satoshis per kilo weight unit.
type feeRate struct {
	satsPerKWU *big.Rat
}

func newFeeRate(fee btcutil.Amount, weight uint64) feeRate {
	if weight == 0 {
		return feeRate{satsPerKWU: new(big.Rat)}
	}

	return feeRate{satsPerKWU: big.NewRat(
		int64(fee)*kilo, clampInt64(weight),
	)}
}

// cmp compares two fee rates, a zero value counts as zero.
func (f feeRate) cmp(other feeRate) int {
	return f.rat().Cmp(other.rat())
}

func (f feeRate) rat() *big.Rat {
	if f.satsPerKWU == nil {
		return new(big.Rat)
	}

	return f.satsPerKWU
}

// feeForWeight returns the fee for weight, rounded down.
func (f feeRate) feeForWeight(weight WeightUnit) btcutil.Amount {
	fee := new(big.Rat).Mul(
		f.rat(), big.NewRat(clampInt64(weight.wu), kilo),
	)

	return btcutil.Amount(new(big.Int).Quo(fee.Num(), fee.Denom()).Int64())
}

// format renders the rate scaled by num/denom with three decimals.
func (f feeRate) format(num, denom int64, unit string) string {
	scaled := new(big.Rat).Mul(f.rat(), big.NewRat(num, denom))

	return scaled.FloatString(3) + " " + unit
}

// SatPerVByte is a fee rate in sat/vb.
type SatPerVByte struct {
	feeRate
}

// NewSatPerVByte returns a rate of rate sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return CalcSatPerVByte(rate, NewVByte(1))
}

// CalcSatPerVByte returns the rate paid by fee for size vb.
func CalcSatPerVByte(fee btcutil.Amount, size VByte) SatPerVByte {
	return SatPerVByte{newFeeRate(fee, size.wu)}
}

// FeeForVSize returns the fee for size at this rate, rounded down.
func (s SatPerVByte) FeeForVSize(size VByte) btcutil.Amount {
	return s.feeForWeight(size.ToWU())
}

// GreaterThan reports whether s is above other.
func (s SatPerVByte) GreaterThan(other SatPerVByte) bool {
	return s.cmp(other.feeRate) > 0
}

// Equal reports whether both rates are the same.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.cmp(other.feeRate) == 0
}

// ToSatPerKVByte converts the rate to sat/kvb.
func (s SatPerVByte) ToSatPerKVByte() SatPerKVByte {
	return SatPerKVByte(s)
}

// String renders the rate in sat/vb.
func (s SatPerVByte) String() string {
	return s.format(blockchain.WitnessScaleFactor, kilo, "sat/vb")
}

// SatPerKVByte is a fee rate in sat/kvb, the unit of relay fee policies.
type SatPerKVByte struct {
	feeRate
}

// NewSatPerKVByte returns a rate of rate sat/kvb.
func NewSatPerKVByte(rate btcutil.Amount) SatPerKVByte {
	return SatPerKVByte{newFeeRate(rate, kilo*blockchain.WitnessScaleFactor)}
}

// FeePerKVByte returns the fee paid for one kilo virtual byte.
func (s SatPerKVByte) FeePerKVByte() btcutil.Amount {
	return s.feeForWeight(NewVByte(kilo).ToWU())
}

// GreaterThan reports whether s is above other.
func (s SatPerKVByte) GreaterThan(other SatPerKVByte) bool {
	return s.cmp(other.feeRate) > 0
}

// ToSatPerVByte converts the rate to sat/vb.
func (s SatPerKVByte) ToSatPerVByte() SatPerVByte {
	return SatPerVByte(s)
}

// String renders the rate in sat/kvb.
func (s SatPerKVByte) String() string {
	return s.format(blockchain.WitnessScaleFactor, 1, "sat/kvb")
}

// clampInt64 converts u, capping at math.MaxInt64. Weights are bounded by
// consensus so the cap is never hit in practice.
func clampInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
