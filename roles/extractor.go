// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/psbtv2/pkg/btcunit"
	"github.com/btcsuite/psbtv2/psbtv2"
)

// DefaultMaxFeeRate is the highest fee rate ExtractTx accepts.
var DefaultMaxFeeRate = btcunit.NewSatPerVByte(25_000)

// TxExtractor builds the network transaction of a finalized version 0
// document.
type TxExtractor interface {
	ExtractTx(legacy *psbt.Packet) (*wire.MsgTx, error)
}

// PsbtExtractor is the default TxExtractor built on btcutil's psbt package.
type PsbtExtractor struct{}

// A compile time check to ensure PsbtExtractor implements TxExtractor.
var _ TxExtractor = (*PsbtExtractor)(nil)

// ExtractTx returns the transaction with the final scripts applied.
func (e *PsbtExtractor) ExtractTx(legacy *psbt.Packet) (*wire.MsgTx, error) {
	return psbt.Extract(legacy)
}

// extractorOptions holds the policy and collaborator of an Extractor.
type extractorOptions struct {
	maxFeeRate   btcunit.SatPerVByte
	dustRelayFee btcutil.Amount
	checkDust    bool
	txExtractor  TxExtractor
}

func defaultExtractorOptions() *extractorOptions {
	return &extractorOptions{
		maxFeeRate:   DefaultMaxFeeRate,
		dustRelayFee: txrules.DefaultRelayFeePerKb,
		checkDust:    true,
		txExtractor:  &PsbtExtractor{},
	}
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*extractorOptions)

// WithMaxFeeRate sets the highest fee rate ExtractTx accepts.
func WithMaxFeeRate(rate btcunit.SatPerVByte) ExtractorOption {
	return func(opts *extractorOptions) {
		opts.maxFeeRate = rate
	}
}

// WithDustRelayFee sets the relay fee in sat/kvb outputs are checked
// against.
func WithDustRelayFee(fee btcutil.Amount) ExtractorOption {
	return func(opts *extractorOptions) {
		opts.dustRelayFee = fee
	}
}

// WithoutDustCheck disables the dust check of the checked extractions.
func WithoutDustCheck() ExtractorOption {
	return func(opts *extractorOptions) {
		opts.checkDust = false
	}
}

// WithTxExtractor replaces the default PsbtExtractor.
func WithTxExtractor(extractor TxExtractor) ExtractorOption {
	return func(opts *extractorOptions) {
		opts.txExtractor = extractor
	}
}

// Extractor produces the network transaction of a finalized document.
type Extractor struct {
	packet *psbtv2.Packet
	opts   *extractorOptions
}

// NewExtractor takes ownership of p. It fails when an input is not
// finalized or when the lock time cannot be determined.
func NewExtractor(p *psbtv2.Packet,
	opts ...ExtractorOption) (*Extractor, error) {

	var pending []error
	for i := range p.Inputs {
		if !p.Inputs[i].IsFinalized() {
			pending = append(pending, &psbtv2.IndexedError{
				Kind: "input", Index: i, Err: ErrNotFinalized,
			})
		}
	}
	if len(pending) > 0 {
		return nil, roleError(roleExtractor, p, errors.Join(pending...))
	}

	if _, err := p.DetermineLockTime(); err != nil {
		return nil, roleError(roleExtractor, p, err)
	}

	cfg := defaultExtractorOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Extractor{packet: p, opts: cfg}, nil
}

// ID returns the identifier of the document.
func (e *Extractor) ID() (chainhash.Hash, error) {
	return e.packet.ID()
}

// Packet returns a copy of the finalized document.
func (e *Extractor) Packet() *psbtv2.Packet {
	return e.packet.Copy()
}

// ExtractTx returns the transaction, failing with ErrFeeTooHigh when it pays
// more than the configured maximum fee rate.
func (e *Extractor) ExtractTx() (*wire.MsgTx, error) {
	return e.ExtractTxFeeRateLimit(e.opts.maxFeeRate)
}

// ExtractTxFeeRateLimit returns the transaction, failing with ErrFeeTooHigh
// when it pays more than maxFeeRate.
func (e *Extractor) ExtractTxFeeRateLimit(
	maxFeeRate btcunit.SatPerVByte) (*wire.MsgTx, error) {

	tx, err := e.ExtractTxUnchecked()
	if err != nil {
		return nil, err
	}

	fee, err := e.Fee()
	if err != nil {
		return nil, err
	}

	vsize := btcunit.TxWeight(tx).ToVB()
	feeRate := btcunit.CalcSatPerVByte(fee, vsize)
	if feeRate.GreaterThan(maxFeeRate) {
		return nil, fmt.Errorf("%w: %v pays %v (%v for %v), max %v",
			ErrFeeTooHigh, tx.TxHash(), feeRate, fee, vsize,
			maxFeeRate)
	}

	if e.opts.checkDust {
		for i, out := range tx.TxOut {
			err := txrules.CheckOutput(out, e.opts.dustRelayFee)
			if err != nil {
				return nil, fmt.Errorf("%w: output %d: %w",
					ErrExtract, i, err)
			}
		}
	}

	log.Debugf("Extracted tx %v paying %v", tx.TxHash(), feeRate)

	return tx, nil
}

// ExtractTxUnchecked returns the transaction without looking at its fee or
// outputs.
func (e *Extractor) ExtractTxUnchecked() (*wire.MsgTx, error) {
	legacy, err := e.packet.Legacy()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtract, err)
	}

	tx, err := e.opts.txExtractor.ExtractTx(legacy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtract, err)
	}

	return tx, nil
}

// Fee returns the fee the transaction pays: the value of the spent outputs
// minus the value of the created ones.
func (e *Extractor) Fee() (btcutil.Amount, error) {
	var in, out btcutil.Amount
	for i := range e.packet.Inputs {
		utxo, err := e.packet.Inputs[i].FundingUtxo()
		if err != nil {
			return 0, fmt.Errorf("%w: input %d: %w", ErrExtract, i,
				err)
		}
		in += btcutil.Amount(utxo.Value)
	}
	for i := range e.packet.Outputs {
		out += e.packet.Outputs[i].Amount
	}

	if out > in {
		return 0, fmt.Errorf("%w: outputs %v exceed inputs %v",
			ErrExtract, out, in)
	}

	return in - out, nil
}
