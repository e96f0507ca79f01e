// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package roles

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyGetter looks up the private key for a public key given its origin. The
// public key is a 33 or 65 byte ECDSA key or a 32 byte x-only key. It
// returns ErrKeyNotFound when it does not hold the key.
type KeyGetter interface {
	GetKey(pubKey []byte, source psbtv2.KeySource) (*btcec.PrivateKey,
		error)
}

// HDKeyGetter derives keys from a BIP-32 master key. Only origins whose
// fingerprint matches the master key are served.
type HDKeyGetter struct {
	master      *hdkeychain.ExtendedKey
	fingerprint uint32
}

// NewHDKeyGetter returns a KeyGetter deriving from master, which must be a
// private extended key.
func NewHDKeyGetter(master *hdkeychain.ExtendedKey) (*HDKeyGetter, error) {
	if !master.IsPrivate() {
		return nil, errors.New("master key is not private")
	}

	pub, err := master.ECPubKey()
	if err != nil {
		return nil, err
	}

	return &HDKeyGetter{
		master:      master,
		fingerprint: Fingerprint(pub),
	}, nil
}

// Fingerprint returns the fingerprint origins derived from the master key
// carry.
func (h *HDKeyGetter) Fingerprint() uint32 {
	return h.fingerprint
}

// GetKey derives the key at source.Path and checks it is pubKey.
func (h *HDKeyGetter) GetKey(pubKey []byte,
	source psbtv2.KeySource) (*btcec.PrivateKey, error) {

	if source.Fingerprint != h.fingerprint {
		return nil, ErrKeyNotFound
	}

	key := h.master
	for _, child := range source.Path {
		var err error
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("derive %v: %w", source.Path, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}

	if !matchesKey(priv.PubKey(), pubKey) {
		return nil, fmt.Errorf("%w: key at %v is not %x",
			ErrKeyNotFound, source.Path, pubKey)
	}

	return priv, nil
}

// PrivKeyGetter serves a fixed set of private keys regardless of origin.
type PrivKeyGetter struct {
	keys []*btcec.PrivateKey
}

// NewPrivKeyGetter returns a KeyGetter holding keys.
func NewPrivKeyGetter(keys ...*btcec.PrivateKey) *PrivKeyGetter {
	return &PrivKeyGetter{keys: keys}
}

// GetKey returns the key whose public key is pubKey.
func (g *PrivKeyGetter) GetKey(pubKey []byte,
	_ psbtv2.KeySource) (*btcec.PrivateKey, error) {

	for _, key := range g.keys {
		if matchesKey(key.PubKey(), pubKey) {
			return key, nil
		}
	}

	return nil, ErrKeyNotFound
}

// Fingerprint returns the BIP-32 fingerprint of pub in the byte order used
// by KeySource.
func Fingerprint(pub *btcec.PublicKey) uint32 {
	hash := btcutil.Hash160(pub.SerializeCompressed())

	return binary.LittleEndian.Uint32(hash[:4])
}

func matchesKey(pub *btcec.PublicKey, want []byte) bool {
	switch len(want) {
	case schnorr.PubKeyBytesLen:
		return bytes.Equal(schnorr.SerializePubKey(pub), want)

	case btcec.PubKeyBytesLenCompressed:
		return bytes.Equal(pub.SerializeCompressed(), want)

	case secp256k1.PubKeyBytesLenUncompressed:
		return bytes.Equal(pub.SerializeUncompressed(), want)
	}

	return false
}
