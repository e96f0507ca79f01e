// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/rawpsbt"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// p2wpkhScript is a syntactically valid P2WPKH output script.
var p2wpkhScript = append([]byte{txscript.OP_0, txscript.OP_DATA_20},
	make([]byte, 20)...)

// testPacket returns a document spending two outpoints into two outputs.
func testPacket(t *testing.T) *Packet {
	t.Helper()

	return &Packet{
		TxVersion:  2,
		Modifiable: FlagInputsModifiable | FlagOutputsModifiable,
		Inputs: []Input{
			NewInput(wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}),
			NewInput(wire.OutPoint{Hash: chainhash.Hash{2}, Index: 3}),
		},
		Outputs: []Output{
			NewOutput(40_000, p2wpkhScript),
			NewOutput(btcutil.Amount(9_000), []byte{txscript.OP_TRUE}),
		},
	}
}

// lockInput returns an input with the given lock time requirements.
func lockInput(minTime, minHeight fn.Option[uint32]) Input {
	return Input{MinTime: minTime, MinHeight: minHeight}
}

func inputFields(nonWitness *wire.MsgTx,
	witness *wire.TxOut) rawpsbt.InputFields {

	return rawpsbt.InputFields{
		NonWitnessUtxo: nonWitness,
		WitnessUtxo:    witness,
	}
}

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
