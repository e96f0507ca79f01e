// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/btcsuite/psbtv2/rawpsbt"
)

// PsbtFinalizer is the default InputFinalizer. It hands the input to
// btcutil's psbt finalizer, which knows the standard single key, multisig
// and taproot key path spends.
type PsbtFinalizer struct{}

// A compile time check to ensure PsbtFinalizer implements InputFinalizer.
var _ InputFinalizer = (*PsbtFinalizer)(nil)

// FinalizeInput finalizes req.Input in a single input version 0 document.
func (f *PsbtFinalizer) FinalizeInput(
	req *FinalizeRequest) (*FinalScripts, error) {

	single := &psbtv2.Packet{
		TxVersion: DefaultTxVersion,
		Inputs:    []psbtv2.Input{req.Input.Copy()},
	}

	legacy, err := single.Legacy()
	if err != nil {
		return nil, err
	}

	if _, err := psbt.MaybeFinalize(legacy, 0); err != nil {
		return nil, err
	}

	finalized := &legacy.Inputs[0]
	scripts := &FinalScripts{
		ScriptSig: finalized.FinalScriptSig,
	}
	if len(finalized.FinalScriptWitness) > 0 {
		scripts.Witness, err = rawpsbt.ReadTxWitness(
			finalized.FinalScriptWitness,
		)
		if err != nil {
			return nil, err
		}
	}

	return scripts, nil
}
