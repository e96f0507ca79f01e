// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/stretchr/testify/require"
)

// verifyTx runs the script engine on every input of tx.
func verifyTx(t *testing.T, tx *wire.MsgTx,
	prevOuts map[wire.OutPoint]*wire.TxOut) {

	t.Helper()

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, txIn := range tx.TxIn {
		utxo := prevOuts[txIn.PreviousOutPoint]
		require.NotNil(t, utxo)

		vm, err := txscript.NewEngine(
			utxo.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, utxo.Value, fetcher,
		)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

// constructSpend runs the Creator and Constructor for a document spending
// prevOut into a single 1,000 sat cheaper output.
func constructSpend(t *testing.T, prevOut wire.OutPoint,
	value int64) *Updater {

	t.Helper()

	c := NewCreator().ConstructorModifiable()
	require.NoError(t, AddInput(c, psbtv2.NewInput(prevOut)))
	require.NoError(t, AddOutput(c, psbtv2.NewOutput(
		btcutil.Amount(value-1_000),
		p2wpkhScript(t, testKey(99).PubKey()),
	)))

	u, err := c.Updater()
	require.NoError(t, err)

	return u
}

// signFinalizeExtract runs the remaining roles with keys.
func signFinalizeExtract(t *testing.T, u *Updater,
	keys KeyGetter) (*wire.MsgTx, SigningKeys) {

	t.Helper()

	s, err := u.Signer()
	require.NoError(t, err)

	signed, err := s.Sign(keys)
	require.NoError(t, err)

	f, err := s.Finalizer()
	require.NoError(t, err)

	e, err := f.Finalize()
	require.NoError(t, err)

	tx, err := e.ExtractTx()
	require.NoError(t, err)

	return tx, signed
}

// TestWorkflowP2WPKH drives a P2WPKH spend through every role with keys
// derived from an HD master key.
func TestWorkflowP2WPKH(t *testing.T) {
	t.Parallel()

	// Arrange: Derive the spending key and fund it.
	master, err := hdkeychain.NewMaster(
		bytes.Repeat([]byte{0x01}, hdkeychain.RecommendedSeedLen),
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	keys, err := NewHDKeyGetter(master)
	require.NoError(t, err)

	path := []uint32{
		hdkeychain.HardenedKeyStart + 84,
		hdkeychain.HardenedKeyStart + 1,
		hdkeychain.HardenedKeyStart,
		0, 3,
	}
	child := master
	for _, idx := range path {
		child, err = child.Derive(idx)
		require.NoError(t, err)
	}
	pubKey, err := child.ECPubKey()
	require.NoError(t, err)

	utxo := wire.NewTxOut(100_000, p2wpkhScript(t, pubKey))
	prevOut := wire.OutPoint{Hash: fundingTx(utxo).TxHash()}

	// Act: Construct, update, sign, finalize and extract.
	u := constructSpend(t, prevOut, utxo.Value)
	require.NoError(t, u.SetWitnessUtxo(0, utxo))
	require.NoError(t, u.AddInputBip32Derivation(0, pubKey,
		psbtv2.KeySource{Fingerprint: keys.Fingerprint(), Path: path},
	))

	tx, signed := signFinalizeExtract(t, u, keys)

	// Assert: The derived key signed and the transaction is valid.
	require.Equal(t,
		SigningKeys{0: {pubKey.SerializeCompressed()}}, signed)
	verifyTx(t, tx, map[wire.OutPoint]*wire.TxOut{prevOut: utxo})
}

// TestWorkflowP2PKH drives a legacy spend funded by a non-witness UTXO
// through every role.
func TestWorkflowP2PKH(t *testing.T) {
	t.Parallel()

	key := testKey(31)
	utxo := wire.NewTxOut(70_000, p2pkhScript(t, key.PubKey()))
	prevTx := fundingTx(utxo)
	prevOut := wire.OutPoint{Hash: prevTx.TxHash()}

	u := constructSpend(t, prevOut, utxo.Value)
	require.NoError(t, u.SetNonWitnessUtxo(0, prevTx))
	require.NoError(t, u.AddInputBip32Derivation(
		0, key.PubKey(), psbtv2.KeySource{Fingerprint: 7},
	))

	tx, _ := signFinalizeExtract(t, u, NewPrivKeyGetter(key))

	require.NotEmpty(t, tx.TxIn[0].SignatureScript)
	require.Empty(t, tx.TxIn[0].Witness)
	verifyTx(t, tx, map[wire.OutPoint]*wire.TxOut{prevOut: utxo})
}

// TestWorkflowTaprootKeyPath drives a BIP-86 taproot key path spend through
// every role.
func TestWorkflowTaprootKeyPath(t *testing.T) {
	t.Parallel()

	internal := testKey(41)
	outputKey := txscript.ComputeTaprootKeyNoScript(internal.PubKey())
	pkScript, err := txscript.PayToTaprootScript(outputKey)
	require.NoError(t, err)

	utxo := wire.NewTxOut(80_000, pkScript)
	prevOut := wire.OutPoint{Hash: fundingTx(utxo).TxHash()}

	u := constructSpend(t, prevOut, utxo.Value)
	require.NoError(t, u.SetWitnessUtxo(0, utxo))
	require.NoError(t, u.SetTapInternalKey(0, internal.PubKey()))
	require.NoError(t, u.AddTapBip32Derivation(
		0, internal.PubKey(), psbtv2.TapKeySource{
			KeySource: psbtv2.KeySource{Fingerprint: 7},
		},
	))

	tx, signed := signFinalizeExtract(t, u, NewPrivKeyGetter(internal))

	require.Equal(t, SigningKeys{
		0: {schnorr.SerializePubKey(internal.PubKey())},
	}, signed)
	require.Len(t, tx.TxIn[0].Witness, 1)
	verifyTx(t, tx, map[wire.OutPoint]*wire.TxOut{prevOut: utxo})
}

// TestWorkflowMultiParty checks two parties can sign their own inputs on
// separate copies and combine the results into a valid transaction.
func TestWorkflowMultiParty(t *testing.T) {
	t.Parallel()

	// Arrange: Each party owns one P2WPKH input.
	partyKeys := []*btcec.PrivateKey{testKey(51), testKey(52)}
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)

	c := NewCreator(WithFallbackLockTime(800_000)).ConstructorModifiable()
	utxos := make([]*wire.TxOut, len(partyKeys))
	for i, key := range partyKeys {
		utxos[i] = wire.NewTxOut(60_000, p2wpkhScript(t, key.PubKey()))
		prevOut := wire.OutPoint{Hash: fundingTx(utxos[i]).TxHash()}
		prevOuts[prevOut] = utxos[i]

		require.NoError(t, AddInput(c, psbtv2.NewInput(prevOut)))
	}
	require.NoError(t, AddOutput(c, psbtv2.NewOutput(
		115_000, p2wpkhScript(t, testKey(99).PubKey()),
	)))

	u, err := c.Updater()
	require.NoError(t, err)
	for i, key := range partyKeys {
		require.NoError(t, u.SetWitnessUtxo(i, utxos[i]))
		require.NoError(t, u.AddInputBip32Derivation(
			i, key.PubKey(), psbtv2.KeySource{Fingerprint: 9},
		))
	}
	base := u.Packet()

	// Act: Each party signs its own copy, then the copies are combined.
	var signedCopies []*psbtv2.Packet
	for i, key := range partyKeys {
		s, err := NewSigner(base.Copy())
		require.NoError(t, err)

		signed, err := s.Sign(NewPrivKeyGetter(key))
		require.NoError(t, err)
		require.Contains(t, signed, i)
		require.Len(t, signed, 1)

		signedCopies = append(signedCopies, s.Packet())
	}

	combined, err := psbtv2.CombineAll(signedCopies...)
	require.NoError(t, err)

	f, err := NewFinalizer(combined)
	require.NoError(t, err)
	e, err := f.Finalize()
	require.NoError(t, err)
	tx, err := e.ExtractTx()
	require.NoError(t, err)

	// Assert: Both inputs are satisfied.
	require.Equal(t, uint32(800_000), tx.LockTime)
	verifyTx(t, tx, prevOuts)
}
