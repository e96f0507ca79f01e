// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawpsbt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// maxKeyLen bounds the length of a single key. BIP-174 does not set a
	// limit, this is far above anything a defined key type produces.
	maxKeyLen = 10000

	// maxValueLen bounds the length of a single value, which may hold a
	// full previous transaction.
	maxValueLen = wire.MaxBlockPayload

	// maxWitnessItems bounds the number of stack items of a final witness.
	maxWitnessItems = 10000
)

// magic is the fixed prefix of every serialized document.
var magic = [5]byte{0x70, 0x73, 0x62, 0x74, 0xff}

// kvPair is a single raw entry of a map.
type kvPair struct {
	keyType uint8
	keyData []byte
	value   []byte
}

// key returns the full key, type byte included.
func (kv *kvPair) key() []byte {
	return append([]byte{kv.keyType}, kv.keyData...)
}

// readKVPair reads the next entry of a map. A nil pair with a nil error
// signals the zero length separator that terminates the map.
func readKVPair(r io.Reader) (*kvPair, error) {
	keyLen, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	if keyLen == 0 {
		return nil, nil
	}

	if keyLen > maxKeyLen {
		return nil, fmt.Errorf("%w: key length %d exceeds %d",
			ErrInvalidKeyData, keyLen, maxKeyLen)
	}

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	value, err := wire.ReadVarBytes(r, 0, maxValueLen, "psbt value")
	if err != nil {
		return nil, err
	}

	return &kvPair{
		keyType: key[0],
		keyData: key[1:],
		value:   value,
	}, nil
}

// writeKV writes a single entry.
func writeKV(w io.Writer, keyType uint8, keyData, value []byte) error {
	err := wire.WriteVarInt(w, 0, uint64(len(keyData)+1))
	if err != nil {
		return err
	}

	if _, err := w.Write([]byte{keyType}); err != nil {
		return err
	}

	if _, err := w.Write(keyData); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, value)
}

// writeSeparator terminates a map.
func writeSeparator(w io.Writer) error {
	_, err := w.Write([]byte{0x00})
	return err
}

// keySet tracks the keys seen within one map to reject duplicates.
type keySet map[string]struct{}

// add records the key and reports whether it was new.
func (s keySet) add(kv *kvPair) bool {
	k := string(kv.key())
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}

	return true
}

// expectNoKeyData fails unless the entry has an empty key data part.
func expectNoKeyData(kv *kvPair) error {
	if len(kv.keyData) != 0 {
		return fmt.Errorf("%w: unexpected key data of length %d",
			ErrInvalidKeyData, len(kv.keyData))
	}

	return nil
}

// expectValueLen fails unless the value has exactly n bytes.
func expectValueLen(kv *kvPair, n int) error {
	if len(kv.value) != n {
		return fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidValue, n, len(kv.value))
	}

	return nil
}

func uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)

	return b[:]
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)

	return b[:]
}

func varIntBytes(v uint64) []byte {
	var b bytes.Buffer
	_ = wire.WriteVarInt(&b, 0, v)

	return b.Bytes()
}

// readCompactSize parses a value consisting of exactly one compact size
// integer.
func readCompactSize(value []byte) (uint64, error) {
	r := bytes.NewReader(value)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if r.Len() != 0 {
		return 0, fmt.Errorf("%w: trailing bytes after compact size",
			ErrInvalidValue)
	}

	return n, nil
}

// readKeySource parses a BIP-32 derivation value.
func readKeySource(value []byte) (KeySource, error) {
	fingerprint, path, err := psbt.ReadBip32Derivation(value)
	if err != nil {
		return KeySource{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return KeySource{Fingerprint: fingerprint, Path: path}, nil
}

// serializeKeySource encodes a BIP-32 derivation value.
func serializeKeySource(k KeySource) []byte {
	return psbt.SerializeBIP32Derivation(k.Fingerprint, k.Path)
}

// readTapKeySource parses a taproot BIP-32 derivation value: the leaf
// hashes prefixed by their count, followed by the key source.
func readTapKeySource(value []byte) (TapKeySource, error) {
	r := bytes.NewReader(value)
	numHashes, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return TapKeySource{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if numHashes > uint64(r.Len()/chainhash.HashSize) {
		return TapKeySource{}, fmt.Errorf("%w: %d leaf hashes do not "+
			"fit in value", ErrInvalidValue, numHashes)
	}

	var source TapKeySource
	if numHashes > 0 {
		source.LeafHashes = make([]chainhash.Hash, numHashes)
	}
	for i := range source.LeafHashes {
		if _, err := io.ReadFull(r, source.LeafHashes[i][:]); err != nil {
			return TapKeySource{}, fmt.Errorf("%w: %v",
				ErrInvalidValue, err)
		}
	}

	rest := value[len(value)-r.Len():]
	source.KeySource, err = readKeySource(rest)
	if err != nil {
		return TapKeySource{}, err
	}

	return source, nil
}

// serializeTapKeySource encodes a taproot BIP-32 derivation value.
func serializeTapKeySource(k TapKeySource) []byte {
	var b bytes.Buffer
	_ = wire.WriteVarInt(&b, 0, uint64(len(k.LeafHashes)))
	for _, h := range k.LeafHashes {
		b.Write(h[:])
	}
	b.Write(serializeKeySource(k.KeySource))

	return b.Bytes()
}

// readTxOut parses a serialized transaction output.
func readTxOut(value []byte) (*wire.TxOut, error) {
	if len(value) < 9 {
		return nil, fmt.Errorf("%w: output too short", ErrInvalidValue)
	}

	amount := int64(binary.LittleEndian.Uint64(value[:8]))

	r := bytes.NewReader(value[8:])
	pkScript, err := wire.ReadVarBytes(
		r, 0, wire.MaxMessagePayload, "pkscript",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after output",
			ErrInvalidValue)
	}

	return wire.NewTxOut(amount, pkScript), nil
}

// serializeTxOut encodes a transaction output.
func serializeTxOut(out *wire.TxOut) ([]byte, error) {
	var b bytes.Buffer
	if err := wire.WriteTxOut(&b, 0, 0, out); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// ReadTxWitness parses the wire encoding of a witness stack: the number of
// items followed by each item prefixed with its length.
func ReadTxWitness(value []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(value)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if count > maxWitnessItems {
		return nil, fmt.Errorf("%w: %d witness items exceed %d",
			ErrInvalidValue, count, maxWitnessItems)
	}

	witness := make(wire.TxWitness, count)
	for i := range witness {
		witness[i], err = wire.ReadVarBytes(
			r, 0, maxValueLen, "witness item",
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after witness",
			ErrInvalidValue)
	}

	return witness, nil
}

// SerializeTxWitness returns the wire encoding of a witness stack.
func SerializeTxWitness(witness wire.TxWitness) ([]byte, error) {
	var b bytes.Buffer
	if err := psbt.WriteTxWitness(&b, witness); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// sortedByKey returns the keys of m ordered by their byte representation so
// that serialization is deterministic.
func sortedByKey[K comparable, V any](m map[K]V,
	keyBytes func(K) []byte) []K {

	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b K) int {
		return bytes.Compare(keyBytes(a), keyBytes(b))
	})

	return keys
}

func stringKey(k string) []byte {
	return []byte(k)
}

func hash20Key(k [20]byte) []byte {
	return k[:]
}

func hash32Key(k [32]byte) []byte {
	return k[:]
}

func tapScriptSigKeyBytes(k TapScriptSigKey) []byte {
	return append(slices.Clone(k.XOnlyPubKey[:]), k.LeafHash[:]...)
}
