// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// testKey returns a deterministic private key.
func testKey(seed byte) *btcec.PrivateKey {
	return secp256k1.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
}

// p2wpkhScript returns the P2WPKH script paying to key.
func p2wpkhScript(t *testing.T, key *btcec.PublicKey) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(key.SerializeCompressed())).
		Script()
	require.NoError(t, err)

	return script
}

// p2pkhScript returns the P2PKH script paying to key.
func p2pkhScript(t *testing.T, key *btcec.PublicKey) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(key.SerializeCompressed())).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	return script
}

// fundingTx returns a transaction creating outs.
func fundingTx(outs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 7}, nil, nil))
	for _, out := range outs {
		tx.AddTxOut(out)
	}

	return tx
}

// twoInputPacket returns a modifiable document with two witness funded
// inputs worth 50,000 sat each and one 90,000 sat output.
func twoInputPacket(t *testing.T) *psbtv2.Packet {
	t.Helper()

	script := p2wpkhScript(t, testKey(1).PubKey())
	p := &psbtv2.Packet{
		TxVersion: 2,
		Inputs: []psbtv2.Input{
			psbtv2.NewInput(wire.OutPoint{Hash: chainhash.Hash{1}}),
			psbtv2.NewInput(wire.OutPoint{Hash: chainhash.Hash{2}}),
		},
		Outputs: []psbtv2.Output{psbtv2.NewOutput(90_000, script)},
	}
	for i := range p.Inputs {
		p.Inputs[i].WitnessUtxo = wire.NewTxOut(50_000, script)
	}

	return p
}

// conflictingPacket returns a document whose inputs require both a time and
// a height based lock time.
func conflictingPacket(t *testing.T) *psbtv2.Packet {
	t.Helper()

	p := twoInputPacket(t)
	p.Inputs[0].MinTime = fn.Some(uint32(500_000_001))
	p.Inputs[1].MinHeight = fn.Some(uint32(800_000))

	return p
}

// requireRoleError asserts err is a RoleError for role carrying want.
func requireRoleError(t *testing.T, err error, role string,
	want *psbtv2.Packet) *RoleError {

	t.Helper()

	var roleErr *RoleError
	require.ErrorAs(t, err, &roleErr)
	require.Equal(t, role, roleErr.Role)
	require.Same(t, want, roleErr.Packet)

	return roleErr
}
