// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestNewConstructorFlags checks every Constructor variant is refused for a
// document missing one of the flags it needs.
func TestNewConstructorFlags(t *testing.T) {
	t.Parallel()

	newModifiable := func(p *psbtv2.Packet) error {
		_, err := NewConstructor[Modifiable](p)
		return err
	}
	newInputsOnly := func(p *psbtv2.Packet) error {
		_, err := NewConstructor[InputsOnlyModifiable](p)
		return err
	}
	newOutputsOnly := func(p *psbtv2.Packet) error {
		_, err := NewConstructor[OutputsOnlyModifiable](p)
		return err
	}

	const (
		in  = psbtv2.FlagInputsModifiable
		out = psbtv2.FlagOutputsModifiable
	)

	testCases := []struct {
		name        string
		flags       psbtv2.TxModifiableFlags
		construct   func(*psbtv2.Packet) error
		wantInputs  bool
		wantOutputs bool
	}{
		{
			name:      "modifiable with both flags",
			flags:     in | out,
			construct: newModifiable,
		},
		{
			name:       "modifiable without inputs",
			flags:      out,
			construct:  newModifiable,
			wantInputs: true,
		},
		{
			name:        "modifiable without outputs",
			flags:       in,
			construct:   newModifiable,
			wantOutputs: true,
		},
		{
			name:        "modifiable without any flag",
			construct:   newModifiable,
			wantInputs:  true,
			wantOutputs: true,
		},
		{
			name:      "inputs only with inputs flag",
			flags:     in,
			construct: newInputsOnly,
		},
		{
			name:       "inputs only without inputs flag",
			flags:      out,
			construct:  newInputsOnly,
			wantInputs: true,
		},
		{
			name:      "outputs only with outputs flag",
			flags:     out,
			construct: newOutputsOnly,
		},
		{
			name:        "outputs only without outputs flag",
			flags:       in,
			construct:   newOutputsOnly,
			wantOutputs: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: Create a document with the case's flags.
			p := twoInputPacket(t)
			p.Modifiable = tc.flags

			// Act: Ask for the Constructor variant.
			err := tc.construct(p)

			// Assert: Only the missing flags are reported.
			if !tc.wantInputs && !tc.wantOutputs {
				require.NoError(t, err)
				return
			}

			requireRoleError(t, err, roleConstructor, p)

			var notMod *psbtv2.NotModifiableError
			require.ErrorAs(t, err, &notMod)
			require.Equal(t, tc.wantInputs, notMod.Inputs)
			require.Equal(t, tc.wantOutputs, notMod.Outputs)
			require.Equal(t, tc.wantInputs,
				errors.Is(err, psbtv2.ErrInputsNotModifiable))
			require.Equal(t, tc.wantOutputs,
				errors.Is(err, psbtv2.ErrOutputsNotModifiable))
		})
	}
}

// TestNoMoreInputs checks an input cannot be added once the inputs were
// closed, while outputs can still be added.
func TestNoMoreInputs(t *testing.T) {
	t.Parallel()

	// Arrange: Close the inputs of a modifiable constructor.
	c := NewCreator().ConstructorModifiable().NoMoreInputs()

	// Act: Try to add an input and an output.
	inErr := AddInput(c, psbtv2.NewInput(wire.OutPoint{Index: 1}))
	outErr := AddOutput(c, psbtv2.NewOutput(1_000, []byte{0x51}))

	// Assert: Only the input is refused.
	require.ErrorIs(t, inErr, psbtv2.ErrInputsNotModifiable)
	require.NoError(t, outErr)

	p, err := c.Packet()
	require.NoError(t, err)
	require.Zero(t, p.InputCount())
	require.Equal(t, 1, p.OutputCount())
}

// TestNoMoreOutputs checks an output cannot be added once the outputs were
// closed.
func TestNoMoreOutputs(t *testing.T) {
	t.Parallel()

	c := NewCreator().ConstructorOutputsOnly().NoMoreOutputs()

	err := AddOutput(c, psbtv2.NewOutput(1_000, []byte{0x51}))
	require.ErrorIs(t, err, psbtv2.ErrOutputsNotModifiable)
}

// TestAddInputDuplicate checks an outpoint cannot be spent twice.
func TestAddInputDuplicate(t *testing.T) {
	t.Parallel()

	c := NewCreator().ConstructorInputsOnly()
	prevOut := wire.OutPoint{Hash: chainhash.Hash{9}, Index: 2}

	require.NoError(t, AddInput(c, psbtv2.NewInput(prevOut)))

	err := AddInput(c, psbtv2.NewInput(prevOut))
	require.ErrorIs(t, err, psbtv2.ErrDuplicateInput)

	p, err := c.Packet()
	require.NoError(t, err)
	require.Equal(t, 1, p.InputCount())
}

// TestAddInputLockTimeConflict checks an input whose lock time requirement
// conflicts with an existing input is refused and the document is left
// unchanged.
func TestAddInputLockTimeConflict(t *testing.T) {
	t.Parallel()

	// Arrange: Add an input requiring a height based lock time.
	c := NewCreator().ConstructorModifiable()
	heightIn := psbtv2.NewInput(wire.OutPoint{Index: 1})
	heightIn.MinHeight = fn.Some(uint32(800_000))
	require.NoError(t, AddInput(c, heightIn))

	// Act: Add an input requiring a time based lock time.
	timeIn := psbtv2.NewInput(wire.OutPoint{Index: 2})
	timeIn.MinTime = fn.Some(uint32(1_700_000_000))
	err := AddInput(c, timeIn)

	// Assert: The input is refused.
	require.ErrorIs(t, err, psbtv2.ErrLockTimeConflict)

	p, err := c.Packet()
	require.NoError(t, err)
	require.Equal(t, 1, p.InputCount())

	lockTime, err := p.DetermineLockTime()
	require.NoError(t, err)
	require.Equal(t, uint32(800_000), lockTime)
}

// TestAddInputCopies checks the Constructor keeps its own copy of an added
// input.
func TestAddInputCopies(t *testing.T) {
	t.Parallel()

	c := NewCreator().ConstructorModifiable()

	in := psbtv2.NewInput(wire.OutPoint{Index: 1})
	in.RedeemScript = []byte{0x51}
	require.NoError(t, AddInput(c, in))

	in.RedeemScript[0] = 0x00

	p, err := c.Packet()
	require.NoError(t, err)
	require.Equal(t, []byte{0x51}, p.Inputs[0].RedeemScript)
}

// TestConstructorUpdater checks handing the document to an Updater closes
// both sets.
func TestConstructorUpdater(t *testing.T) {
	t.Parallel()

	c := NewCreator(WithSighashSingle()).ConstructorModifiable()
	require.NoError(t, AddInput(c, psbtv2.NewInput(wire.OutPoint{})))
	require.NoError(t, AddOutput(c, psbtv2.NewOutput(1, []byte{0x51})))

	u, err := c.Updater()
	require.NoError(t, err)
	require.Equal(t, psbtv2.FlagHasSighashSingle, u.Packet().Modifiable)
}

// TestConstructorUpdaterCopies checks the Updater does not share the
// Constructor's document.
func TestConstructorUpdaterCopies(t *testing.T) {
	t.Parallel()

	c := NewCreator().ConstructorModifiable()
	require.NoError(t, AddInput(c, psbtv2.NewInput(wire.OutPoint{})))

	u, err := c.Updater()
	require.NoError(t, err)

	// The Constructor keeps its flags and further inputs stay with it.
	require.NoError(t, AddInput(c, psbtv2.NewInput(
		wire.OutPoint{Index: 1},
	)))

	p, err := c.Packet()
	require.NoError(t, err)
	require.Len(t, p.Inputs, 2)
	require.True(t, p.Modifiable.InputsModifiable())

	require.Len(t, u.Packet().Inputs, 1)
	require.False(t, u.Packet().Modifiable.InputsModifiable())
}

// TestConstructorUpdaterLockTimeConflict checks a document whose lock time
// cannot be determined is returned untouched.
func TestConstructorUpdaterLockTimeConflict(t *testing.T) {
	t.Parallel()

	// Arrange: Construct from a document that already conflicts.
	p := conflictingPacket(t)
	p.Modifiable = psbtv2.FlagInputsModifiable |
		psbtv2.FlagOutputsModifiable

	c, err := NewConstructor[Modifiable](p)
	require.NoError(t, err)

	// Act: Try to move on to the Updater.
	_, err = c.Updater()

	// Assert: The conflict is reported and the flags are not cleared.
	require.ErrorIs(t, err, psbtv2.ErrLockTimeConflict)
	roleErr := requireRoleError(t, err, roleConstructor, p)
	require.True(t, roleErr.Packet.Modifiable.InputsModifiable())
	require.True(t, roleErr.Packet.Modifiable.OutputsModifiable())

	_, err = c.Packet()
	require.ErrorIs(t, err, psbtv2.ErrLockTimeConflict)
}
