// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
)

// SignRequest is everything an InputSigner needs to sign one input.
type SignRequest struct {
	// Tx is the unsigned transaction.
	Tx *wire.MsgTx

	// Index is the position of the input being signed.
	Index int

	// Input is the input being signed. It must not be modified.
	Input *psbtv2.Input

	// Utxo is the output the input spends.
	Utxo *wire.TxOut

	// SigHashes caches the sighash midstate of Tx.
	SigHashes *txscript.TxSigHashes

	// AllPrevOutsKnown is false when some input of Tx has no funding
	// UTXO. Taproot signatures commit to every spent output and cannot
	// be produced then.
	AllPrevOutsKnown bool
}

// InputSignature is a signature produced for an input.
type InputSignature struct {
	// PubKey is the key that signed. It is the 33 byte compressed key for
	// an ECDSA signature and the 32 byte x-only key for a taproot one.
	PubKey []byte

	// Sig is the serialized signature including the sighash byte where
	// one is required.
	Sig []byte

	// HashType is the sighash type the signature commits to.
	HashType txscript.SigHashType

	// Taproot is set for a taproot key path signature.
	Taproot bool
}

// InputSigner signs one input with the keys it can get from keys. It returns
// ErrKeyNotFound when keys holds none of the keys the input needs.
type InputSigner interface {
	SignInput(keys KeyGetter, req *SignRequest) ([]InputSignature, error)
}

// signerOptions holds the collaborators of a Signer.
type signerOptions struct {
	inputSigner InputSigner
}

func defaultSignerOptions() *signerOptions {
	return &signerOptions{
		inputSigner: &TxScriptSigner{},
	}
}

// SignerOption configures a Signer.
type SignerOption func(*signerOptions)

// WithInputSigner replaces the default TxScriptSigner.
func WithInputSigner(signer InputSigner) SignerOption {
	return func(opts *signerOptions) {
		opts.inputSigner = signer
	}
}

// Signer adds signatures to the inputs of a document.
type Signer struct {
	packet *psbtv2.Packet
	opts   *signerOptions
}

// NewSigner takes ownership of p. It fails when the lock time of p cannot be
// determined.
func NewSigner(p *psbtv2.Packet, opts ...SignerOption) (*Signer, error) {
	if _, err := p.DetermineLockTime(); err != nil {
		return nil, roleError(roleSigner, p, err)
	}

	cfg := defaultSignerOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Signer{packet: p, opts: cfg}, nil
}

// ID returns the identifier of the document.
func (s *Signer) ID() (chainhash.Hash, error) {
	return s.packet.ID()
}

// UnsignedTx returns the transaction being signed.
func (s *Signer) UnsignedTx() (*wire.MsgTx, error) {
	return s.packet.UnsignedTx()
}

// Packet returns a copy of the document with the signatures added so far.
func (s *Signer) Packet() *psbtv2.Packet {
	return s.packet.Copy()
}

// Finalizer hands a copy of the document to a Finalizer. Later signatures
// do not reach the Finalizer.
func (s *Signer) Finalizer(opts ...FinalizerOption) (*Finalizer, error) {
	return NewFinalizer(s.packet.Copy(), opts...)
}

// Sign signs every input that is not finalized yet with the keys available
// from keys. Inputs keys holds no key for are skipped. Every signature is
// recorded and the modifiable flags are updated after each one. When some
// inputs fail, the signatures of the others are still recorded and the
// failures are returned as SigningErrors.
func (s *Signer) Sign(keys KeyGetter) (SigningKeys, error) {
	p := s.packet

	tx, err := p.UnsignedTx()
	if err != nil {
		return nil, err
	}

	fetcher, allKnown := prevOutFetcher(p)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	signed := make(SigningKeys)
	failed := make(SigningErrors)
	for idx := range p.Inputs {
		in := &p.Inputs[idx]
		if in.IsFinalized() {
			continue
		}

		utxo, err := in.FundingUtxo()
		if err != nil {
			failed[idx] = err
			continue
		}

		sigs, err := s.opts.inputSigner.SignInput(keys, &SignRequest{
			Tx:               tx,
			Index:            idx,
			Input:            in,
			Utxo:             utxo,
			SigHashes:        sigHashes,
			AllPrevOutsKnown: allKnown,
		})
		switch {
		case errors.Is(err, ErrKeyNotFound):
			log.Tracef("No key for input %d", idx)
			continue

		case err != nil:
			failed[idx] = err
			continue
		}

		for _, sig := range sigs {
			recordSignature(in, sig)
			p.Modifiable = p.Modifiable.AfterSignature(sig.HashType)
			signed[idx] = append(signed[idx], clone(sig.PubKey))
		}
	}

	log.Debugf("Signed %d inputs, %d failed, flags now %v", len(signed),
		len(failed), p.Modifiable)

	if len(failed) > 0 {
		log.Warnf("Unable to sign inputs: %v", failed)

		return signed, failed
	}

	return signed, nil
}

// recordSignature stores sig on in.
func recordSignature(in *psbtv2.Input, sig InputSignature) {
	if sig.Taproot {
		in.TapKeySig = clone(sig.Sig)
		return
	}

	if in.PartialSigs == nil {
		in.PartialSigs = make(map[string][]byte)
	}
	in.PartialSigs[string(sig.PubKey)] = clone(sig.Sig)
}

// prevOutFetcher returns a fetcher for the outputs spent by p. An input
// without a funding UTXO is given an empty output so the sighash midstate
// can still be computed for the other inputs, and allKnown is false.
func prevOutFetcher(p *psbtv2.Packet) (*txscript.MultiPrevOutFetcher,
	bool) {

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	allKnown := true
	for i := range p.Inputs {
		in := &p.Inputs[i]

		utxo, err := in.FundingUtxo()
		if err != nil {
			allKnown = false
			utxo = &wire.TxOut{}
		}
		fetcher.AddPrevOut(in.OutPoint(), utxo)
	}

	return fetcher, allKnown
}
