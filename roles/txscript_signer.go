// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/psbtv2/psbtv2"
)

// TxScriptSigner is the default InputSigner. It signs P2PKH, P2SH, P2WPKH
// and P2WSH inputs for every key in the input's BIP-32 derivations, and the
// key path of taproot inputs for a derivation of the internal key.
type TxScriptSigner struct{}

// A compile time check to ensure TxScriptSigner implements InputSigner.
var _ InputSigner = (*TxScriptSigner)(nil)

// SignInput signs req.Input with the keys keys holds.
func (t *TxScriptSigner) SignInput(keys KeyGetter,
	req *SignRequest) ([]InputSignature, error) {

	if txscript.IsPayToTaproot(req.Utxo.PkScript) {
		return signTaprootKeyPath(keys, req)
	}

	sign, err := ecdsaSignFunc(req)
	if err != nil {
		return nil, err
	}

	in := req.Input
	hashType := in.SighashType.UnwrapOr(txscript.SigHashAll)

	var sigs []InputSignature
	for _, pubKey := range slices.Sorted(maps.Keys(in.Bip32Derivation)) {
		source := in.Bip32Derivation[pubKey]

		key, err := keys.GetKey([]byte(pubKey), source)
		switch {
		case errors.Is(err, ErrKeyNotFound):
			continue

		case err != nil:
			return nil, err
		}

		sig, err := sign(key, hashType)
		if err != nil {
			return nil, err
		}

		sigs = append(sigs, InputSignature{
			PubKey:   []byte(pubKey),
			Sig:      sig,
			HashType: hashType,
		})
	}

	if len(sigs) == 0 {
		return nil, ErrKeyNotFound
	}

	return sigs, nil
}

type signFunc func(*btcec.PrivateKey, txscript.SigHashType) ([]byte, error)

// ecdsaSignFunc picks the signature algorithm for the script req spends.
func ecdsaSignFunc(req *SignRequest) (signFunc, error) {
	in := req.Input

	script := req.Utxo.PkScript
	if txscript.IsPayToScriptHash(script) {
		if len(in.RedeemScript) == 0 {
			return nil, fmt.Errorf("%w: p2sh input has no redeem "+
				"script", ErrMissingScript)
		}
		script = in.RedeemScript
	}

	witnessSign := func(subScript []byte) signFunc {
		return func(key *btcec.PrivateKey,
			hashType txscript.SigHashType) ([]byte, error) {

			return txscript.RawTxInWitnessSignature(
				req.Tx, req.SigHashes, req.Index,
				req.Utxo.Value, subScript, hashType, key,
			)
		}
	}

	switch {
	case txscript.IsPayToWitnessPubKeyHash(script):
		return witnessSign(script), nil

	case txscript.IsPayToWitnessScriptHash(script):
		if len(in.WitnessScript) == 0 {
			return nil, fmt.Errorf("%w: p2wsh input has no "+
				"witness script", ErrMissingScript)
		}

		return witnessSign(in.WitnessScript), nil

	case txscript.IsWitnessProgram(script):
		return nil, fmt.Errorf("%w: witness program %x",
			ErrUnsupportedScript, script)
	}

	return func(key *btcec.PrivateKey,
		hashType txscript.SigHashType) ([]byte, error) {

		return txscript.RawTxInSignature(
			req.Tx, req.Index, script, hashType, key,
		)
	}, nil
}

// signTaprootKeyPath signs a taproot input with the internal key, tweaked by
// the input's merkle root.
func signTaprootKeyPath(keys KeyGetter,
	req *SignRequest) ([]InputSignature, error) {

	if !req.AllPrevOutsKnown {
		return nil, fmt.Errorf("%w: taproot signatures commit to "+
			"every spent output", psbtv2.ErrMissingUtxo)
	}

	in := req.Input
	hashType := in.SighashType.UnwrapOr(txscript.SigHashDefault)

	for _, xOnly := range slices.SortedFunc(
		maps.Keys(in.TapBip32Derivation), compareXOnly,
	) {

		source := in.TapBip32Derivation[xOnly]

		// Keys with leaf hashes sign script paths.
		if len(source.LeafHashes) > 0 {
			continue
		}
		if len(in.TapInternalKey) > 0 &&
			!bytes.Equal(in.TapInternalKey, xOnly[:]) {

			continue
		}

		key, err := keys.GetKey(xOnly[:], source.KeySource)
		switch {
		case errors.Is(err, ErrKeyNotFound):
			continue

		case err != nil:
			return nil, err
		}

		sig, err := txscript.RawTxInTaprootSignature(
			req.Tx, req.SigHashes, req.Index, req.Utxo.Value,
			req.Utxo.PkScript, in.TapMerkleRoot, hashType, key,
		)
		if err != nil {
			return nil, err
		}

		return []InputSignature{{
			PubKey:   clone(xOnly[:]),
			Sig:      sig,
			HashType: hashType,
			Taproot:  true,
		}}, nil
	}

	return nil, ErrKeyNotFound
}

func compareXOnly(a, b [32]byte) int {
	return bytes.Compare(a[:], b[:])
}
