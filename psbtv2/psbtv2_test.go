// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/rawpsbt"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestIDIgnoresSequences checks that the document id is stable while
// sequences change but follows every other change of the transaction.
func TestIDIgnoresSequences(t *testing.T) {
	t.Parallel()

	// Arrange: A document and its id.
	p := testPacket(t)
	id, err := p.ID()
	require.NoError(t, err)

	tx, err := p.UnsignedTx()
	require.NoError(t, err)

	// Act: Change a sequence.
	p.Inputs[0].Sequence = fn.Some(uint32(1))

	// Assert: The id is unchanged while the txid moved.
	sameID, err := p.ID()
	require.NoError(t, err)
	require.Equal(t, id, sameID)

	newTx, err := p.UnsignedTx()
	require.NoError(t, err)
	require.NotEqual(t, tx.TxHash(), newTx.TxHash())

	// Act: Change an output amount.
	p.Outputs[0].Amount--

	// Assert: The id follows.
	otherID, err := p.ID()
	require.NoError(t, err)
	require.NotEqual(t, id, otherID)
}

// TestUnsignedTx checks the transaction assembled from the strict fields.
func TestUnsignedTx(t *testing.T) {
	t.Parallel()

	p := testPacket(t)
	p.TxVersion = 3
	p.Inputs[1].Sequence = fn.Some(uint32(0xfffffffd))

	tx, err := p.UnsignedTx()
	require.NoError(t, err)

	require.Equal(t, int32(3), tx.Version)
	require.Len(t, tx.TxIn, 2)
	require.Equal(t, p.Inputs[1].OutPoint(), tx.TxIn[1].PreviousOutPoint)
	require.Equal(t, uint32(wire.MaxTxInSequenceNum), tx.TxIn[0].Sequence)
	require.Equal(t, uint32(0xfffffffd), tx.TxIn[1].Sequence)
	require.Len(t, tx.TxOut, 2)
	require.Equal(t, int64(40_000), tx.TxOut[0].Value)
	require.Equal(t, p2wpkhScript, tx.TxOut[0].PkScript)
}

// TestFundingUtxo checks the lookup of the spent output.
func TestFundingUtxo(t *testing.T) {
	t.Parallel()

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	prevTx.AddTxOut(wire.NewTxOut(1, []byte{txscript.OP_TRUE}))
	prevTx.AddTxOut(wire.NewTxOut(2, p2wpkhScript))
	witnessUtxo := wire.NewTxOut(3, p2wpkhScript)

	testCases := []struct {
		name     string
		input    Input
		expected *wire.TxOut
		err      error
	}{
		{
			name:  "no utxo",
			input: Input{},
			err:   ErrMissingUtxo,
		},
		{
			name: "witness utxo preferred",
			input: Input{InputFields: inputFields(
				prevTx, witnessUtxo,
			)},
			expected: witnessUtxo,
		},
		{
			name: "non-witness utxo",
			input: Input{
				SpentOutputIndex: 1,
				InputFields:      inputFields(prevTx, nil),
			},
			expected: prevTx.TxOut[1],
		},
		{
			name: "non-witness utxo index out of bounds",
			input: Input{
				SpentOutputIndex: 2,
				InputFields:      inputFields(prevTx, nil),
			},
			err: ErrOutOfBounds,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Act: Look up the funding output.
			utxo, err := tc.input.FundingUtxo()

			// Assert: The expected output or error is returned.
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, utxo)
		})
	}
}

// TestSetNonWitnessUtxo checks that a non-witness UTXO must match the
// outpoint.
func TestSetNonWitnessUtxo(t *testing.T) {
	t.Parallel()

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	prevTx.AddTxOut(wire.NewTxOut(1, []byte{txscript.OP_TRUE}))

	// A nil transaction is refused.
	in := NewInput(wire.OutPoint{Hash: chainhash.Hash{1}})
	require.ErrorIs(t, in.SetNonWitnessUtxo(nil), ErrNilUtxo)

	// A wrong transaction is refused.
	err := in.SetNonWitnessUtxo(prevTx)
	require.ErrorIs(t, err, ErrNonWitnessUtxoMismatch)

	// The right transaction with a missing output is refused.
	in = NewInput(wire.OutPoint{Hash: prevTx.TxHash(), Index: 1})
	err = in.SetNonWitnessUtxo(prevTx)
	require.ErrorIs(t, err, ErrOutOfBounds)

	// The right transaction and output are stored as a copy.
	in = NewInput(wire.OutPoint{Hash: prevTx.TxHash()})
	require.NoError(t, in.SetNonWitnessUtxo(prevTx))
	prevTx.TxOut[0].Value = 5
	require.EqualValues(t, 1, in.NonWitnessUtxo.TxOut[0].Value)
}

// TestIsFinalized checks the finalized predicate for both funding kinds.
func TestIsFinalized(t *testing.T) {
	t.Parallel()

	in := Input{}
	require.False(t, in.IsFinalized())

	in.FinalScriptSig = fn.Some([]byte{txscript.OP_TRUE})
	require.True(t, in.IsFinalized())

	in.WitnessUtxo = wire.NewTxOut(1, p2wpkhScript)
	require.False(t, in.IsFinalized())

	in.FinalScriptWitness = wire.TxWitness{{0x01}}
	require.True(t, in.IsFinalized())

	// A segwit spend funded by the full previous transaction only needs
	// the witness.
	nonWitness := Input{InputFields: rawpsbt.InputFields{
		FinalScriptWitness: wire.TxWitness{{0x01}},
	}}
	require.True(t, nonWitness.IsFinalized())
}

// TestPreimages checks that preimages are stored under their hashes.
func TestPreimages(t *testing.T) {
	t.Parallel()

	preimage := []byte("secret")
	in := Input{}

	sha := in.AddSha256Preimage(preimage)
	require.Equal(t, sha256.Sum256(preimage), sha)
	require.Equal(t, preimage, in.Sha256Preimages[sha])

	hash256 := in.AddHash256Preimage(preimage)
	require.Equal(t, [32]byte(chainhash.DoubleHashH(preimage)), hash256)

	in.AddRipemd160Preimage(preimage)
	in.AddHash160Preimage(preimage)
	require.Len(t, in.Ripemd160Preimages, 1)
	require.Len(t, in.Hash160Preimages, 1)

	// The codec verifies every preimage against its hash.
	p := testPacket(t)
	p.Inputs[0].InputFields = in.InputFields
	b, err := p.ToRaw().Bytes()
	require.NoError(t, err)

	decoded, err := NewFromRawBytes(bytesReader(b), false)
	require.NoError(t, err)
	require.Equal(t, in.InputFields, decoded.Inputs[0].InputFields)
}

// TestXpub checks the conversion between extended keys and xpub map keys.
func TestXpub(t *testing.T) {
	t.Parallel()

	// Arrange: A master key and a child.
	seed := make([]byte, hdkeychain.RecommendedSeedLen)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	child, err := master.Derive(hdkeychain.HardenedKeyStart + 84)
	require.NoError(t, err)

	// Act: Record the child.
	p := testPacket(t)
	source := KeySource{
		Fingerprint: 0x01020304,
		Path:        []uint32{hdkeychain.HardenedKeyStart + 84},
	}
	require.NoError(t, p.AddXpub(child, source))

	// Assert: The private key was neutered and can be parsed back.
	require.Len(t, p.Xpubs, 1)
	for raw, got := range p.Xpubs {
		require.Len(t, raw, xpubLen)
		require.Equal(t, source, got)

		parsed, err := ParseXpub(
			[]byte(raw), &chaincfg.RegressionNetParams,
		)
		require.NoError(t, err)

		_, err = ParseXpub([]byte(raw), &chaincfg.MainNetParams)
		require.ErrorIs(t, err, ErrInvalidXpub)

		neutered, err := child.Neuter()
		require.NoError(t, err)
		require.Equal(t, neutered.String(), parsed.String())
	}

	_, err = ParseXpub([]byte{0x01}, nil)
	require.ErrorIs(t, err, ErrInvalidXpub)
}

// TestInputOutputAccess checks bounds checking of the accessors.
func TestInputOutputAccess(t *testing.T) {
	t.Parallel()

	p := testPacket(t)
	require.Equal(t, 2, p.InputCount())
	require.Equal(t, 2, p.OutputCount())

	in, err := p.Input(1)
	require.NoError(t, err)
	require.Equal(t, &p.Inputs[1], in)

	_, err = p.Input(2)
	require.ErrorIs(t, err, ErrOutOfBounds)

	_, err = p.Output(-1)
	var oob *OutOfBoundsError
	require.ErrorAs(t, err, &oob)
	require.Equal(t, 2, oob.Len)

	require.True(t, p.HasOutPoint(p.Inputs[0].OutPoint()))
	require.False(t, p.HasOutPoint(wire.OutPoint{Index: 42}))
}
