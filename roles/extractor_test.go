// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/pkg/btcunit"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// finalizedPacket returns a two input document whose inputs carry final
// witnesses. It pays a fee of 100,000 - outputs.
func finalizedPacket(t *testing.T, outputs ...btcutil.Amount) *psbtv2.Packet {
	t.Helper()

	p := twoInputPacket(t)
	for i := range p.Inputs {
		p.Inputs[i].FinalScriptWitness = wire.TxWitness{{0x01}}
	}

	script := p.Outputs[0].Script
	p.Outputs = nil
	for _, amount := range outputs {
		p.Outputs = append(p.Outputs, psbtv2.NewOutput(amount, script))
	}

	return p
}

// TestNewExtractorNotFinalized checks every input must be finalized.
func TestNewExtractorNotFinalized(t *testing.T) {
	t.Parallel()

	p := finalizedPacket(t, 90_000)
	p.Inputs[1].FinalScriptWitness = nil

	_, err := NewExtractor(p)
	require.ErrorIs(t, err, ErrNotFinalized)
	requireRoleError(t, err, roleExtractor, p)

	var indexed *psbtv2.IndexedError
	require.ErrorAs(t, err, &indexed)
	require.Equal(t, 1, indexed.Index)
}

// TestNewExtractorLockTimeConflict checks the Extractor refuses a document
// whose lock time cannot be determined.
func TestNewExtractorLockTimeConflict(t *testing.T) {
	t.Parallel()

	p := conflictingPacket(t)
	for i := range p.Inputs {
		p.Inputs[i].FinalScriptWitness = wire.TxWitness{{0x01}}
	}

	_, err := NewExtractor(p)
	require.ErrorIs(t, err, psbtv2.ErrLockTimeConflict)
	requireRoleError(t, err, roleExtractor, p)
}

// TestExtractTx checks the extracted transaction carries the final scripts
// and the fee checks.
func TestExtractTx(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		outputs     []btcutil.Amount
		opts        []ExtractorOption
		extract     func(e *Extractor) (*wire.MsgTx, error)
		expectedErr error
	}{
		{
			name:    "default limit",
			outputs: []btcutil.Amount{90_000},
			extract: (*Extractor).ExtractTx,
		},
		{
			name:    "fee above configured maximum",
			outputs: []btcutil.Amount{90_000},
			opts: []ExtractorOption{
				WithMaxFeeRate(btcunit.NewSatPerVByte(10)),
			},
			extract:     (*Extractor).ExtractTx,
			expectedErr: ErrFeeTooHigh,
		},
		{
			name:    "fee above explicit maximum",
			outputs: []btcutil.Amount{90_000},
			extract: func(e *Extractor) (*wire.MsgTx, error) {
				return e.ExtractTxFeeRateLimit(
					btcunit.NewSatPerVByte(1),
				)
			},
			expectedErr: ErrFeeTooHigh,
		},
		{
			name:    "unchecked ignores fee",
			outputs: []btcutil.Amount{1_000},
			opts: []ExtractorOption{
				WithMaxFeeRate(btcunit.NewSatPerVByte(1)),
			},
			extract: (*Extractor).ExtractTxUnchecked,
		},
		{
			name:        "dust output",
			outputs:     []btcutil.Amount{90_000, 100},
			extract:     (*Extractor).ExtractTx,
			expectedErr: ErrExtract,
		},
		{
			name:    "dust check disabled",
			outputs: []btcutil.Amount{90_000, 100},
			opts:    []ExtractorOption{WithoutDustCheck()},
			extract: (*Extractor).ExtractTx,
		},
		{
			name:        "outputs exceed inputs",
			outputs:     []btcutil.Amount{100_001},
			extract:     (*Extractor).ExtractTx,
			expectedErr: ErrExtract,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: Create an extractor for a finalized
			// document.
			p := finalizedPacket(t, tc.outputs...)
			e, err := NewExtractor(p, tc.opts...)
			require.NoError(t, err)

			// Act: Extract the transaction.
			tx, err := tc.extract(e)

			// Assert: The transaction is the document's.
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				require.Nil(t, tx)

				return
			}

			require.NoError(t, err)
			require.Len(t, tx.TxIn, 2)
			require.Len(t, tx.TxOut, len(tc.outputs))
			for _, txIn := range tx.TxIn {
				require.Equal(t, wire.TxWitness{{0x01}},
					txIn.Witness)
			}

			unsigned, err := p.UnsignedTx()
			require.NoError(t, err)
			require.Equal(t, unsigned.TxHash(), tx.TxHash())
		})
	}
}

// TestExtractorFee checks the fee is the value of the spent outputs minus
// the created ones.
func TestExtractorFee(t *testing.T) {
	t.Parallel()

	e, err := NewExtractor(finalizedPacket(t, 60_000, 30_000))
	require.NoError(t, err)

	fee, err := e.Fee()
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(10_000), fee)
}

// TestExtractorCollaboratorFailure checks an extraction failure is wrapped.
func TestExtractorCollaboratorFailure(t *testing.T) {
	t.Parallel()

	errExtract := errors.New("incomplete")
	extractor := &mockTxExtractor{}
	extractor.On("ExtractTx", mock.Anything).Return(nil, errExtract)

	e, err := NewExtractor(
		finalizedPacket(t, 90_000), WithTxExtractor(extractor),
	)
	require.NoError(t, err)

	_, err = e.ExtractTx()
	require.ErrorIs(t, err, ErrExtract)
	require.ErrorIs(t, err, errExtract)
	require.NotErrorIs(t, err, ErrFeeTooHigh)
}
