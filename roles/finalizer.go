// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// FinalizeRequest is everything an InputFinalizer needs to build the final
// scripts of one input.
type FinalizeRequest struct {
	// Index is the position of the input.
	Index int

	// Input is the fully updated and signed input. It must not be
	// modified.
	Input *psbtv2.Input

	// Utxo is the output the input spends.
	Utxo *wire.TxOut
}

// FinalScripts are the scripts that satisfy an input. An empty witness marks
// a spend that is not segwit.
type FinalScripts struct {
	ScriptSig []byte
	Witness   wire.TxWitness
}

// InputFinalizer builds the final scripts of one input.
type InputFinalizer interface {
	FinalizeInput(req *FinalizeRequest) (*FinalScripts, error)
}

// finalizerOptions holds the collaborators of a Finalizer.
type finalizerOptions struct {
	inputFinalizer InputFinalizer
}

func defaultFinalizerOptions() *finalizerOptions {
	return &finalizerOptions{
		inputFinalizer: &PsbtFinalizer{},
	}
}

// FinalizerOption configures a Finalizer.
type FinalizerOption func(*finalizerOptions)

// WithInputFinalizer replaces the default PsbtFinalizer.
func WithInputFinalizer(finalizer InputFinalizer) FinalizerOption {
	return func(opts *finalizerOptions) {
		opts.inputFinalizer = finalizer
	}
}

// Finalizer turns the signatures of every input into final scripts.
type Finalizer struct {
	packet *psbtv2.Packet
	opts   *finalizerOptions
}

// NewFinalizer takes ownership of p. It fails when an input has no funding
// UTXO, when the lock time cannot be determined, or when a partial
// signature does not commit to its input's sighash type.
func NewFinalizer(p *psbtv2.Packet,
	opts ...FinalizerOption) (*Finalizer, error) {

	var missing []error
	for i := range p.Inputs {
		if _, err := p.Inputs[i].FundingUtxo(); err != nil {
			missing = append(missing, &psbtv2.IndexedError{
				Kind: "input", Index: i, Err: err,
			})
		}
	}
	if len(missing) > 0 {
		return nil, roleError(roleFinalizer, p, errors.Join(missing...))
	}

	if _, err := p.DetermineLockTime(); err != nil {
		return nil, roleError(roleFinalizer, p, err)
	}

	if err := checkPartialSigsSighash(p); err != nil {
		return nil, roleError(roleFinalizer, p, err)
	}

	cfg := defaultFinalizerOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Finalizer{packet: p, opts: cfg}, nil
}

// ID returns the identifier of the document.
func (f *Finalizer) ID() (chainhash.Hash, error) {
	return f.packet.ID()
}

// Packet returns a copy of the document.
func (f *Finalizer) Packet() *psbtv2.Packet {
	return f.packet.Copy()
}

// Finalize builds the final scripts of every input that is not finalized
// yet and strips the signing data they replace. Either every input is
// finalized or the document is left as it was and a RoleError is
// returned. On success the document is handed to an Extractor configured
// by opts.
func (f *Finalizer) Finalize(opts ...ExtractorOption) (*Extractor, error) {
	p := f.packet.Copy()
	for idx := range p.Inputs {
		in := &p.Inputs[idx]
		if in.IsFinalized() {
			continue
		}

		if err := f.finalizeInput(idx, in); err != nil {
			return nil, roleError(
				roleFinalizer, f.packet, &psbtv2.IndexedError{
					Kind: "input", Index: idx, Err: err,
				},
			)
		}
	}

	log.Debugf("Finalized %d inputs", p.InputCount())
	log.Tracef("Finalized psbt: %v", spewClosure(p))

	e, err := NewExtractor(p, opts...)
	if err != nil {
		var roleErr *RoleError
		if errors.As(err, &roleErr) {
			err = roleErr.Err
		}

		return nil, roleError(roleFinalizer, f.packet, err)
	}

	return e, nil
}

func (f *Finalizer) finalizeInput(idx int, in *psbtv2.Input) error {
	utxo, err := in.FundingUtxo()
	if err != nil {
		return err
	}

	scripts, err := f.opts.inputFinalizer.FinalizeInput(&FinalizeRequest{
		Index: idx,
		Input: in,
		Utxo:  utxo,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFinalize, err)
	}

	if len(scripts.ScriptSig) == 0 && len(scripts.Witness) == 0 {
		return ErrEmptyFinalScripts
	}

	if in.WitnessUtxo != nil && len(scripts.Witness) == 0 {
		return ErrMissingFinalWitness
	}

	clearSigningData(in)
	if len(scripts.ScriptSig) > 0 {
		in.FinalScriptSig = fn.Some(clone(scripts.ScriptSig))
	}
	if len(scripts.Witness) > 0 {
		in.FinalScriptWitness = copyWitness(scripts.Witness)
	}

	return nil
}

// clearSigningData drops every field a final script replaces. The funding
// UTXOs stay so the fee can still be computed, proprietary and unknown
// entries stay because they are not ours to drop.
func clearSigningData(in *psbtv2.Input) {
	in.PartialSigs = nil
	in.SighashType = fn.None[txscript.SigHashType]()
	in.RedeemScript = nil
	in.WitnessScript = nil
	in.Bip32Derivation = nil
	in.Ripemd160Preimages = nil
	in.Sha256Preimages = nil
	in.Hash160Preimages = nil
	in.Hash256Preimages = nil
	in.TapKeySig = nil
	in.TapScriptSigs = nil
	in.TapLeafScripts = nil
	in.TapBip32Derivation = nil
	in.TapInternalKey = nil
	in.TapMerkleRoot = nil
}

// checkPartialSigsSighash checks every input declares a standard sighash
// type and every partial signature commits to the type its input declares,
// SIGHASH_ALL when it declares none. A taproot input without partial
// signatures may also declare SIGHASH_DEFAULT.
func checkPartialSigsSighash(p *psbtv2.Packet) error {
	for idx := range p.Inputs {
		in := &p.Inputs[idx]

		required := in.SighashType.UnwrapOr(txscript.SigHashAll)
		standard := isStandardECDSASighash(required) ||
			(len(in.PartialSigs) == 0 && isTaprootInput(in) &&
				required == txscript.SigHashDefault)
		if !standard {
			return &SighashError{
				InputIndex: idx,
				Got:        required,
				Err:        ErrNonStandardInputSighash,
			}
		}

		for _, pubKey := range slices.Sorted(maps.Keys(in.PartialSigs)) {
			sig := in.PartialSigs[pubKey]
			if len(sig) == 0 {
				continue
			}

			got := txscript.SigHashType(sig[len(sig)-1])
			if !isStandardECDSASighash(got) {
				return &SighashError{
					InputIndex: idx,
					PubKey:     []byte(pubKey),
					Got:        got,
					Err:        ErrNonStandardPartialSigSighash,
				}
			}

			if got != required {
				return &SighashError{
					InputIndex: idx,
					PubKey:     []byte(pubKey),
					Got:        got,
					Required:   required,
					Err:        ErrWrongSighashFlag,
				}
			}
		}
	}

	return nil
}

// isTaprootInput reports whether the input carries any taproot signing
// data.
func isTaprootInput(in *psbtv2.Input) bool {
	return len(in.TapInternalKey) > 0 || len(in.TapKeySig) > 0 ||
		len(in.TapScriptSigs) > 0 || len(in.TapLeafScripts) > 0
}

func isStandardECDSASighash(hashType txscript.SigHashType) bool {
	switch hashType &^ txscript.SigHashAnyOneCanPay {
	case txscript.SigHashAll, txscript.SigHashNone,
		txscript.SigHashSingle:

		return true
	}

	return false
}

func copyWitness(w wire.TxWitness) wire.TxWitness {
	c := make(wire.TxWitness, len(w))
	for i, item := range w {
		c[i] = clone(item)
	}

	return c
}
