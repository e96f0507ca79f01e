// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"fmt"
	"slices"

	"github.com/btcsuite/psbtv2/psbtv2"
)

// Modifiable marks a Constructor that may add inputs and outputs.
type Modifiable struct{}

// InputsOnlyModifiable marks a Constructor that may only add inputs.
type InputsOnlyModifiable struct{}

// OutputsOnlyModifiable marks a Constructor that may only add outputs.
type OutputsOnlyModifiable struct{}

// Mod is the closed set of Constructor markers.
type Mod interface {
	Modifiable | InputsOnlyModifiable | OutputsOnlyModifiable
}

// InputsMod is the set of markers that allow adding inputs.
type InputsMod interface {
	Modifiable | InputsOnlyModifiable
}

// OutputsMod is the set of markers that allow adding outputs.
type OutputsMod interface {
	Modifiable | OutputsOnlyModifiable
}

// requiredFlags returns which modifiable flags the marker M needs.
func requiredFlags[M Mod]() (inputs, outputs bool) {
	switch any(*new(M)).(type) {
	case Modifiable:
		return true, true

	case InputsOnlyModifiable:
		return true, false

	default:
		return false, true
	}
}

// Constructor adds inputs and outputs to a document. Additions are append
// only, so an input and output paired by a SIGHASH_SINGLE signature keep
// their positions.
type Constructor[M Mod] struct {
	packet *psbtv2.Packet
}

func newConstructor[M Mod](p *psbtv2.Packet) *Constructor[M] {
	log.Debugf("Constructing psbt with flags %v", p.Modifiable)

	return &Constructor[M]{packet: p}
}

// NewConstructor takes ownership of p and returns a Constructor for the
// marker M. It fails with a NotModifiableError naming every flag M needs
// that p does not have.
func NewConstructor[M Mod](p *psbtv2.Packet) (*Constructor[M], error) {
	needInputs, needOutputs := requiredFlags[M]()

	notMod := &psbtv2.NotModifiableError{
		Inputs:  needInputs && !p.Modifiable.InputsModifiable(),
		Outputs: needOutputs && !p.Modifiable.OutputsModifiable(),
	}
	if notMod.Inputs || notMod.Outputs {
		return nil, roleError(roleConstructor, p, notMod)
	}

	return newConstructor[M](p), nil
}

// AddInput appends a copy of in to the document. It fails when the inputs
// are no longer modifiable, when the outpoint is already spent by another
// input, or when the lock time requirements of in conflict with the
// existing inputs.
func AddInput[M InputsMod](c *Constructor[M], in psbtv2.Input) error {
	p := c.packet
	if !p.Modifiable.InputsModifiable() {
		return &psbtv2.NotModifiableError{Inputs: true}
	}

	prevOut := in.OutPoint()
	if p.HasOutPoint(prevOut) {
		return fmt.Errorf("%w: %v", psbtv2.ErrDuplicateInput, prevOut)
	}

	inputs := append(slices.Clone(p.Inputs), in.Copy())
	_, err := psbtv2.DetermineLockTime(inputs, p.FallbackLockTime)
	if err != nil {
		return fmt.Errorf("input %v: %w", prevOut, err)
	}
	p.Inputs = inputs

	log.Debugf("Added input %d spending %v", len(inputs)-1, prevOut)

	return nil
}

// AddOutput appends a copy of out to the document. It fails when the
// outputs are no longer modifiable.
func AddOutput[M OutputsMod](c *Constructor[M], out psbtv2.Output) error {
	p := c.packet
	if !p.Modifiable.OutputsModifiable() {
		return &psbtv2.NotModifiableError{Outputs: true}
	}

	p.Outputs = append(p.Outputs, out.Copy())

	log.Debugf("Added output %d paying %v", len(p.Outputs)-1, out.Amount)

	return nil
}

// NoMoreInputs clears the inputs modifiable flag.
func (c *Constructor[M]) NoMoreInputs() *Constructor[M] {
	c.packet.Modifiable = c.packet.Modifiable.Clear(
		psbtv2.FlagInputsModifiable,
	)

	return c
}

// NoMoreOutputs clears the outputs modifiable flag.
func (c *Constructor[M]) NoMoreOutputs() *Constructor[M] {
	c.packet.Modifiable = c.packet.Modifiable.Clear(
		psbtv2.FlagOutputsModifiable,
	)

	return c
}

// Packet returns a copy of the document so it can be handed to another
// constructor. It fails when the lock time cannot be determined.
func (c *Constructor[M]) Packet() (*psbtv2.Packet, error) {
	if _, err := c.packet.DetermineLockTime(); err != nil {
		return nil, roleError(roleConstructor, c.packet, err)
	}

	return c.packet.Copy(), nil
}

// Updater ends construction: a copy of the document with both modifiable
// flags cleared is handed to an Updater.
func (c *Constructor[M]) Updater() (*Updater, error) {
	if _, err := c.packet.DetermineLockTime(); err != nil {
		return nil, roleError(roleConstructor, c.packet, err)
	}

	p := c.packet.Copy()
	p.Modifiable = p.Modifiable.Clear(
		psbtv2.FlagInputsModifiable | psbtv2.FlagOutputsModifiable,
	)

	return NewUpdater(p)
}
