// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtv2

import (
	"maps"
	"slices"

	"github.com/btcsuite/psbtv2/rawpsbt"
)

func cloneBytesMap[K comparable](m map[K][]byte) map[K][]byte {
	if m == nil {
		return nil
	}

	c := make(map[K][]byte, len(m))
	for k, v := range m {
		c[k] = slices.Clone(v)
	}

	return c
}

func cloneKeySources(m map[string]KeySource) map[string]KeySource {
	if m == nil {
		return nil
	}

	c := maps.Clone(m)
	for k, v := range c {
		c[k] = rawpsbt.CloneKeySource(v)
	}

	return c
}

// CloneKeySource returns a deep copy of k.
func CloneKeySource(k KeySource) KeySource {
	return rawpsbt.CloneKeySource(k)
}
