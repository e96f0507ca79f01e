// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// RequiresTimeLockTime reports whether the input only accepts a time based
// lock time.
func (in *Input) RequiresTimeLockTime() bool {
	return in.MinTime.IsSome() && in.MinHeight.IsNone()
}

// RequiresHeightLockTime reports whether the input only accepts a height
// based lock time.
func (in *Input) RequiresHeightLockTime() bool {
	return in.MinHeight.IsSome() && in.MinTime.IsNone()
}

// HasLockTime reports whether the input carries any lock time requirement.
func (in *Input) HasLockTime() bool {
	return in.MinTime.IsSome() || in.MinHeight.IsSome()
}

// SatisfiableByHeight reports whether a height based lock time can satisfy
// the input. That is the case when it requires a height, accepts both kinds
// or has no requirement.
func (in *Input) SatisfiableByHeight() bool {
	return !in.RequiresTimeLockTime()
}

// DetermineLockTime resolves the lock time of the transaction described by
// inputs. Without any requirement the fallback (or zero) is used. When every
// input can be satisfied by a height the maximum required height wins,
// otherwise the maximum required time.
func DetermineLockTime(inputs []Input,
	fallback fn.Option[uint32]) (uint32, error) {

	var (
		timeInput   = -1
		heightInput = -1
		hasLock     bool
		allHeight   = true
	)
	for i := range inputs {
		in := &inputs[i]

		if in.RequiresTimeLockTime() && timeInput < 0 {
			timeInput = i
		}
		if in.RequiresHeightLockTime() && heightInput < 0 {
			heightInput = i
		}
		hasLock = hasLock || in.HasLockTime()
		allHeight = allHeight && in.SatisfiableByHeight()
	}

	if timeInput >= 0 && heightInput >= 0 {
		return 0, fmt.Errorf("%w: input %d requires a time, input %d "+
			"requires a height", ErrLockTimeConflict, timeInput,
			heightInput)
	}

	if !hasLock {
		return fallback.UnwrapOr(0), nil
	}

	var lockTime uint32
	for i := range inputs {
		field := inputs[i].MinTime
		if allHeight {
			field = inputs[i].MinHeight
		}

		field.WhenSome(func(v uint32) {
			lockTime = max(lockTime, v)
		})
	}

	return lockTime, nil
}

// DetermineLockTime resolves the lock time of the document.
func (p *Packet) DetermineLockTime() (uint32, error) {
	return DetermineLockTime(p.Inputs, p.FallbackLockTime)
}
