// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultTxVersion is the transaction version of a new document.
const DefaultTxVersion = 2

// creatorOptions holds the global parameters of a new document.
type creatorOptions struct {
	txVersion        int32
	fallbackLockTime fn.Option[uint32]
	flags            psbtv2.TxModifiableFlags
}

func defaultCreatorOptions() *creatorOptions {
	return &creatorOptions{
		txVersion: DefaultTxVersion,
	}
}

// CreatorOption configures a new document.
type CreatorOption func(*creatorOptions)

// WithTxVersion sets the version of the transaction being built.
func WithTxVersion(version int32) CreatorOption {
	return func(opts *creatorOptions) {
		opts.txVersion = version
	}
}

// WithFallbackLockTime sets the lock time used when no input requires one.
func WithFallbackLockTime(lockTime uint32) CreatorOption {
	return func(opts *creatorOptions) {
		opts.fallbackLockTime = fn.Some(lockTime)
	}
}

// WithSighashSingle sets the sighash single flag.
func WithSighashSingle() CreatorOption {
	return func(opts *creatorOptions) {
		opts.flags = opts.flags.Set(psbtv2.FlagHasSighashSingle)
	}
}

// WithInputsModifiable sets the inputs modifiable flag.
func WithInputsModifiable() CreatorOption {
	return func(opts *creatorOptions) {
		opts.flags = opts.flags.Set(psbtv2.FlagInputsModifiable)
	}
}

// WithOutputsModifiable sets the outputs modifiable flag.
func WithOutputsModifiable() CreatorOption {
	return func(opts *creatorOptions) {
		opts.flags = opts.flags.Set(psbtv2.FlagOutputsModifiable)
	}
}

// Creator starts a new document with no inputs and no outputs.
type Creator struct {
	packet *psbtv2.Packet
}

// NewCreator returns a Creator for an empty document configured by opts.
func NewCreator(opts ...CreatorOption) *Creator {
	cfg := defaultCreatorOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Creator{
		packet: &psbtv2.Packet{
			TxVersion:        cfg.txVersion,
			FallbackLockTime: cfg.fallbackLockTime,
			Modifiable:       cfg.flags,
		},
	}
}

// Packet returns a copy of the document as configured so far.
func (c *Creator) Packet() *psbtv2.Packet {
	return c.packet.Copy()
}

// ConstructorModifiable hands the document to a Constructor that may add
// inputs and outputs. Both modifiable flags are set.
func (c *Creator) ConstructorModifiable() *Constructor[Modifiable] {
	p := c.packet.Copy()
	p.Modifiable = p.Modifiable.Set(
		psbtv2.FlagInputsModifiable | psbtv2.FlagOutputsModifiable,
	)

	return newConstructor[Modifiable](p)
}

// ConstructorInputsOnly hands the document to a Constructor that may only
// add inputs. The outputs modifiable flag is cleared.
func (c *Creator) ConstructorInputsOnly() *Constructor[InputsOnlyModifiable] {
	p := c.packet.Copy()
	p.Modifiable = p.Modifiable.Set(psbtv2.FlagInputsModifiable).
		Clear(psbtv2.FlagOutputsModifiable)

	return newConstructor[InputsOnlyModifiable](p)
}

// ConstructorOutputsOnly hands the document to a Constructor that may only
// add outputs. The inputs modifiable flag is cleared.
func (c *Creator) ConstructorOutputsOnly() *Constructor[OutputsOnlyModifiable] {
	p := c.packet.Copy()
	p.Modifiable = p.Modifiable.Set(psbtv2.FlagOutputsModifiable).
		Clear(psbtv2.FlagInputsModifiable)

	return newConstructor[OutputsOnlyModifiable](p)
}
