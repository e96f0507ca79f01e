// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// signRequest returns a request for input 0 of a single input transaction
// spending utxo.
func signRequest(in *psbtv2.Input, utxo *wire.TxOut) *SignRequest {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(1_000, []byte{txscript.OP_TRUE}))

	fetcher := txscript.NewCannedPrevOutputFetcher(
		utxo.PkScript, utxo.Value,
	)

	return &SignRequest{
		Tx:               tx,
		Input:            in,
		Utxo:             utxo,
		SigHashes:        txscript.NewTxSigHashes(tx, fetcher),
		AllPrevOutsKnown: true,
	}
}

// TestTxScriptSignerErrors checks the inputs the default signer refuses.
func TestTxScriptSignerErrors(t *testing.T) {
	t.Parallel()

	key := testKey(61)
	derivation := map[string]psbtv2.KeySource{
		string(key.PubKey().SerializeCompressed()): {Fingerprint: 1},
	}
	p2sh := []byte{
		txscript.OP_HASH160, txscript.OP_DATA_20,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		txscript.OP_EQUAL,
	}
	p2wsh := append([]byte{txscript.OP_0, txscript.OP_DATA_32},
		make([]byte, 32)...)
	witnessV2 := append([]byte{txscript.OP_2, txscript.OP_DATA_32},
		make([]byte, 32)...)

	testCases := []struct {
		name        string
		pkScript    []byte
		allKnown    bool
		expectedErr error
	}{
		{
			name:        "p2sh without redeem script",
			pkScript:    p2sh,
			allKnown:    true,
			expectedErr: ErrMissingScript,
		},
		{
			name:        "p2wsh without witness script",
			pkScript:    p2wsh,
			allKnown:    true,
			expectedErr: ErrMissingScript,
		},
		{
			name:        "unknown witness version",
			pkScript:    witnessV2,
			allKnown:    true,
			expectedErr: ErrUnsupportedScript,
		},
		{
			name:        "key not held",
			pkScript:    p2wpkhScript(t, testKey(62).PubKey()),
			allKnown:    true,
			expectedErr: ErrKeyNotFound,
		},
		{
			name: "taproot with unknown spent outputs",
			pkScript: append(
				[]byte{txscript.OP_1, txscript.OP_DATA_32},
				make([]byte, 32)...,
			),
			expectedErr: psbtv2.ErrMissingUtxo,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: An input derived from key spending the
			// case's script.
			in := psbtv2.NewInput(wire.OutPoint{})
			in.Bip32Derivation = derivation
			req := signRequest(&in, wire.NewTxOut(5_000, tc.pkScript))
			req.AllPrevOutsKnown = tc.allKnown

			// Act: Sign with a getter that does not hold key.
			_, err := (&TxScriptSigner{}).SignInput(
				NewPrivKeyGetter(testKey(63)), req,
			)

			// Assert: The case's error is returned.
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

// TestTxScriptSignerKeyGetterFailure checks a key lookup failure other than
// a missing key aborts signing the input.
func TestTxScriptSignerKeyGetterFailure(t *testing.T) {
	t.Parallel()

	key := testKey(64)
	in := psbtv2.NewInput(wire.OutPoint{})
	in.Bip32Derivation = map[string]psbtv2.KeySource{
		string(key.PubKey().SerializeCompressed()): {Fingerprint: 1},
	}
	req := signRequest(&in, wire.NewTxOut(
		5_000, p2wpkhScript(t, key.PubKey()),
	))

	errLocked := errors.New("wallet locked")
	keys := &mockKeyGetter{}
	keys.On("GetKey", mock.Anything, mock.Anything).Return(nil, errLocked)

	_, err := (&TxScriptSigner{}).SignInput(keys, req)
	require.ErrorIs(t, err, errLocked)
	keys.AssertExpectations(t)
}

// TestTxScriptSignerSighashType checks the declared sighash type is used
// and appended to the signature.
func TestTxScriptSignerSighashType(t *testing.T) {
	t.Parallel()

	key := testKey(65)
	in := psbtv2.NewInput(wire.OutPoint{})
	in.SighashType = fn.Some(
		txscript.SigHashNone | txscript.SigHashAnyOneCanPay,
	)
	in.Bip32Derivation = map[string]psbtv2.KeySource{
		string(key.PubKey().SerializeCompressed()): {Fingerprint: 1},
	}
	req := signRequest(&in, wire.NewTxOut(
		5_000, p2wpkhScript(t, key.PubKey()),
	))

	sigs, err := (&TxScriptSigner{}).SignInput(NewPrivKeyGetter(key), req)
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig := sigs[0]
	require.False(t, sig.Taproot)
	require.Equal(t, txscript.SigHashNone|txscript.SigHashAnyOneCanPay,
		sig.HashType)
	require.Equal(t, byte(sig.HashType), sig.Sig[len(sig.Sig)-1])
	require.Equal(t, key.PubKey().SerializeCompressed(), sig.PubKey)
}
