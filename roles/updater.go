// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// PreimageKind selects the hash function a preimage is recorded under.
type PreimageKind uint8

const (
	// PreimageRipemd160 records a RIPEMD160 preimage.
	PreimageRipemd160 PreimageKind = iota

	// PreimageSha256 records a SHA256 preimage.
	PreimageSha256

	// PreimageHash160 records a HASH160 preimage.
	PreimageHash160

	// PreimageHash256 records a double SHA256 preimage.
	PreimageHash256
)

// Updater attaches the data signers and finalizers need. Inputs and outputs
// are addressed by index, an index out of range fails with a
// psbtv2.OutOfBoundsError and leaves the document untouched.
type Updater struct {
	packet *psbtv2.Packet
}

// NewUpdater takes ownership of p. It fails when the lock time of p cannot
// be determined.
func NewUpdater(p *psbtv2.Packet) (*Updater, error) {
	if _, err := p.DetermineLockTime(); err != nil {
		return nil, roleError(roleUpdater, p, err)
	}

	log.Debugf("Updating psbt with %d inputs and %d outputs",
		p.InputCount(), p.OutputCount())

	return &Updater{packet: p}, nil
}

// ID returns the identifier of the document.
func (u *Updater) ID() (chainhash.Hash, error) {
	return u.packet.ID()
}

// Packet returns a copy of the document.
func (u *Updater) Packet() *psbtv2.Packet {
	return u.packet.Copy()
}

// Signer hands a copy of the document to a Signer. Later updates do not
// reach the Signer.
func (u *Updater) Signer(opts ...SignerOption) (*Signer, error) {
	return NewSigner(u.packet.Copy(), opts...)
}

// SetSequence sets the sequence number of an input.
func (u *Updater) SetSequence(idx int, sequence uint32) error {
	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.Sequence = fn.Some(sequence)

	return nil
}

// SetWitnessUtxo sets the output spent by a segwit input.
func (u *Updater) SetWitnessUtxo(idx int, utxo *wire.TxOut) error {
	if utxo == nil {
		return psbtv2.ErrNilUtxo
	}

	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.WitnessUtxo = wire.NewTxOut(utxo.Value, clone(utxo.PkScript))

	return nil
}

// SetNonWitnessUtxo sets the full transaction an input spends from.
func (u *Updater) SetNonWitnessUtxo(idx int, tx *wire.MsgTx) error {
	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	return in.SetNonWitnessUtxo(tx)
}

// SetSighashType sets the sighash type signers of an input must use.
func (u *Updater) SetSighashType(idx int,
	hashType txscript.SigHashType) error {

	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.SighashType = fn.Some(hashType)

	return nil
}

// SetInputRedeemScript sets the redeem script of a P2SH input.
func (u *Updater) SetInputRedeemScript(idx int, script []byte) error {
	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.RedeemScript = clone(script)

	return nil
}

// SetInputWitnessScript sets the witness script of a P2WSH input.
func (u *Updater) SetInputWitnessScript(idx int, script []byte) error {
	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.WitnessScript = clone(script)

	return nil
}

// AddInputBip32Derivation records the origin of a key used by an input.
func (u *Updater) AddInputBip32Derivation(idx int, pubKey *btcec.PublicKey,
	source psbtv2.KeySource) error {

	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	if in.Bip32Derivation == nil {
		in.Bip32Derivation = make(map[string]psbtv2.KeySource)
	}
	in.Bip32Derivation[string(pubKey.SerializeCompressed())] =
		psbtv2.CloneKeySource(source)

	return nil
}

// AddPreimage records a hash preimage on an input and returns the hash it
// was recorded under.
func (u *Updater) AddPreimage(idx int, kind PreimageKind,
	preimage []byte) ([]byte, error) {

	in, err := u.packet.Input(idx)
	if err != nil {
		return nil, err
	}

	switch kind {
	case PreimageRipemd160:
		hash := in.AddRipemd160Preimage(preimage)
		return hash[:], nil

	case PreimageSha256:
		hash := in.AddSha256Preimage(preimage)
		return hash[:], nil

	case PreimageHash160:
		hash := in.AddHash160Preimage(preimage)
		return hash[:], nil

	case PreimageHash256:
		hash := in.AddHash256Preimage(preimage)
		return hash[:], nil

	default:
		return nil, fmt.Errorf("unknown preimage kind %d", kind)
	}
}

// SetTapInternalKey sets the taproot internal key of an input.
func (u *Updater) SetTapInternalKey(idx int, key *btcec.PublicKey) error {
	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.TapInternalKey = schnorr.SerializePubKey(key)

	return nil
}

// SetTapMerkleRoot sets the taproot merkle root of an input.
func (u *Updater) SetTapMerkleRoot(idx int, root chainhash.Hash) error {
	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	in.TapMerkleRoot = clone(root[:])

	return nil
}

// AddTapLeafScript records a leaf script an input may be spent with, keyed
// by its control block.
func (u *Updater) AddTapLeafScript(idx int, controlBlock []byte,
	leaf psbtv2.TapLeaf) error {

	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	if _, err := txscript.ParseControlBlock(controlBlock); err != nil {
		return fmt.Errorf("invalid control block: %w", err)
	}

	if in.TapLeafScripts == nil {
		in.TapLeafScripts = make(map[string]psbtv2.TapLeaf)
	}
	in.TapLeafScripts[string(controlBlock)] = psbtv2.TapLeaf{
		Script:      clone(leaf.Script),
		LeafVersion: leaf.LeafVersion,
	}

	return nil
}

// AddTapBip32Derivation records the origin of a taproot key used by an
// input.
func (u *Updater) AddTapBip32Derivation(idx int, key *btcec.PublicKey,
	source psbtv2.TapKeySource) error {

	in, err := u.packet.Input(idx)
	if err != nil {
		return err
	}

	if in.TapBip32Derivation == nil {
		in.TapBip32Derivation = make(map[[32]byte]psbtv2.TapKeySource)
	}
	in.TapBip32Derivation[xOnlyKey(key)] = cloneTapKeySource(source)

	return nil
}

// SetOutputRedeemScript sets the redeem script of a P2SH output.
func (u *Updater) SetOutputRedeemScript(idx int, script []byte) error {
	out, err := u.packet.Output(idx)
	if err != nil {
		return err
	}

	out.RedeemScript = clone(script)

	return nil
}

// SetOutputWitnessScript sets the witness script of a P2WSH output.
func (u *Updater) SetOutputWitnessScript(idx int, script []byte) error {
	out, err := u.packet.Output(idx)
	if err != nil {
		return err
	}

	out.WitnessScript = clone(script)

	return nil
}

// AddOutputBip32Derivation records the origin of a key used by an output,
// typically change.
func (u *Updater) AddOutputBip32Derivation(idx int,
	pubKey *btcec.PublicKey, source psbtv2.KeySource) error {

	out, err := u.packet.Output(idx)
	if err != nil {
		return err
	}

	if out.Bip32Derivation == nil {
		out.Bip32Derivation = make(map[string]psbtv2.KeySource)
	}
	out.Bip32Derivation[string(pubKey.SerializeCompressed())] =
		psbtv2.CloneKeySource(source)

	return nil
}

// SetOutputTapInternalKey sets the taproot internal key of an output.
func (u *Updater) SetOutputTapInternalKey(idx int,
	key *btcec.PublicKey) error {

	out, err := u.packet.Output(idx)
	if err != nil {
		return err
	}

	out.TapInternalKey = schnorr.SerializePubKey(key)

	return nil
}

// SetOutputTapTree sets the serialized taproot tree of an output.
func (u *Updater) SetOutputTapTree(idx int, tree []byte) error {
	out, err := u.packet.Output(idx)
	if err != nil {
		return err
	}

	out.TapTree = clone(tree)

	return nil
}

// AddOutputTapBip32Derivation records the origin of a taproot key used by
// an output.
func (u *Updater) AddOutputTapBip32Derivation(idx int,
	key *btcec.PublicKey, source psbtv2.TapKeySource) error {

	out, err := u.packet.Output(idx)
	if err != nil {
		return err
	}

	if out.TapBip32Derivation == nil {
		out.TapBip32Derivation = make(map[[32]byte]psbtv2.TapKeySource)
	}
	out.TapBip32Derivation[xOnlyKey(key)] = cloneTapKeySource(source)

	return nil
}

// AddXpub records an extended public key and its origin.
func (u *Updater) AddXpub(key *hdkeychain.ExtendedKey,
	source psbtv2.KeySource) error {

	return u.packet.AddXpub(key, source)
}

func xOnlyKey(key *btcec.PublicKey) [32]byte {
	var xOnly [32]byte
	copy(xOnly[:], schnorr.SerializePubKey(key))

	return xOnly
}

func cloneTapKeySource(k psbtv2.TapKeySource) psbtv2.TapKeySource {
	return psbtv2.TapKeySource{
		LeafHashes: append([]chainhash.Hash(nil), k.LeafHashes...),
		KeySource:  psbtv2.CloneKeySource(k.KeySource),
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append(make([]byte, 0, len(b)), b...)
}
