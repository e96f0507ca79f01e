// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/stretchr/testify/mock"
)

var (
	_ InputSigner    = (*mockInputSigner)(nil)
	_ InputFinalizer = (*mockInputFinalizer)(nil)
	_ TxExtractor    = (*mockTxExtractor)(nil)
	_ KeyGetter      = (*mockKeyGetter)(nil)
)

// mockInputSigner is a mock implementation of the InputSigner interface.
type mockInputSigner struct {
	mock.Mock
}

func (m *mockInputSigner) SignInput(keys KeyGetter,
	req *SignRequest) ([]InputSignature, error) {

	args := m.Called(keys, req)
	sigs, _ := args.Get(0).([]InputSignature)

	return sigs, args.Error(1)
}

// mockInputFinalizer is a mock implementation of the InputFinalizer
// interface.
type mockInputFinalizer struct {
	mock.Mock
}

func (m *mockInputFinalizer) FinalizeInput(
	req *FinalizeRequest) (*FinalScripts, error) {

	args := m.Called(req)
	scripts, _ := args.Get(0).(*FinalScripts)

	return scripts, args.Error(1)
}

// mockTxExtractor is a mock implementation of the TxExtractor interface.
type mockTxExtractor struct {
	mock.Mock
}

func (m *mockTxExtractor) ExtractTx(legacy *psbt.Packet) (*wire.MsgTx,
	error) {

	args := m.Called(legacy)
	tx, _ := args.Get(0).(*wire.MsgTx)

	return tx, args.Error(1)
}

// mockKeyGetter is a mock implementation of the KeyGetter interface.
type mockKeyGetter struct {
	mock.Mock
}

func (m *mockKeyGetter) GetKey(pubKey []byte,
	source psbtv2.KeySource) (*btcec.PrivateKey, error) {

	args := m.Called(pubKey, source)
	key, _ := args.Get(0).(*btcec.PrivateKey)

	return key, args.Error(1)
}
