// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// xpubLen is the length of a serialized extended key without checksum.
const xpubLen = 78

// XpubKey returns the 78 byte serialization of the public form of key, the
// form used to index the global xpub map.
func XpubKey(key *hdkeychain.ExtendedKey) ([]byte, error) {
	if key.IsPrivate() {
		var err error
		key, err = key.Neuter()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidXpub, err)
		}
	}

	payload, version, err := base58.CheckDecode(key.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidXpub, err)
	}

	raw := append([]byte{version}, payload...)
	if len(raw) != xpubLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidXpub,
			len(raw))
	}

	return raw, nil
}

// ParseXpub parses a 78 byte extended public key as stored in the global
// xpub map. When net is not nil the key must belong to it.
func ParseXpub(raw []byte,
	net *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {

	if len(raw) != xpubLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidXpub,
			len(raw))
	}

	key, err := hdkeychain.NewKeyFromString(
		base58.CheckEncode(raw[1:], raw[0]),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidXpub, err)
	}

	if key.IsPrivate() {
		return nil, fmt.Errorf("%w: private key", ErrInvalidXpub)
	}

	if net != nil && !key.IsForNet(net) {
		return nil, fmt.Errorf("%w: not for network %s", ErrInvalidXpub,
			net.Name)
	}

	return key, nil
}

// AddXpub records the origin of an extended public key.
func (p *Packet) AddXpub(key *hdkeychain.ExtendedKey,
	source KeySource) error {

	raw, err := XpubKey(key)
	if err != nil {
		return err
	}

	if p.Xpubs == nil {
		p.Xpubs = make(map[string]KeySource)
	}
	p.Xpubs[string(raw)] = CloneKeySource(source)

	return nil
}
