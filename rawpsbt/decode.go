// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rawpsbt

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

const (
	// xpubLen is the length of a serialized BIP-32 extended key.
	xpubLen = 78

	// controlBlockBaseLen is the length of a control block without any
	// merkle path element.
	controlBlockBaseLen = 33
)

// NewFromRawBytes decodes a document of any supported version from r. When
// b64 is set the stream is base64 encoded.
func NewFromRawBytes(r io.Reader, b64 bool) (*Packet, error) {
	if b64 {
		r = base64.NewDecoder(base64.StdEncoding, r)
	}

	var m [5]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, err
	}
	if m != magic {
		return nil, ErrInvalidMagic
	}

	p := &Packet{}
	if err := p.decodeGlobals(r); err != nil {
		return nil, err
	}

	numInputs, numOutputs, err := p.mapCounts()
	if err != nil {
		return nil, err
	}

	// The declared counts are untrusted, so the slices grow one decoded
	// map at a time instead of being sized up front.
	for i := 0; uint64(i) < numInputs; i++ {
		var in Input
		if err := in.decode(r, i); err != nil {
			return nil, err
		}
		p.Inputs = append(p.Inputs, in)
	}

	for i := 0; uint64(i) < numOutputs; i++ {
		var out Output
		if err := out.decode(r, i); err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, out)
	}

	log.Tracef("Decoded psbt v%d with %d inputs and %d outputs",
		p.PsbtVersion(), numInputs, numOutputs)

	return p, nil
}

// Decode is a convenience wrapper around NewFromRawBytes for a binary
// serialization held in memory.
func Decode(b []byte) (*Packet, error) {
	return NewFromRawBytes(bytes.NewReader(b), false)
}

// mapCounts returns the number of input and output maps that follow the
// global map.
func (p *Packet) mapCounts() (uint64, uint64, error) {
	switch v := p.PsbtVersion(); v {
	case 0, 2:
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	var numInputs, numOutputs fn.Option[uint64]
	if p.UnsignedTx != nil {
		numInputs = fn.Some(uint64(len(p.UnsignedTx.TxIn)))
		numOutputs = fn.Some(uint64(len(p.UnsignedTx.TxOut)))
	}

	// Explicit counts must agree with the unsigned transaction when
	// both are present.
	check := func(implied, explicit fn.Option[uint64]) (uint64, error) {
		switch {
		case implied.IsSome() && explicit.IsSome():
			i := implied.UnwrapOr(0)
			e := explicit.UnwrapOr(0)
			if i != e {
				return 0, fmt.Errorf("%w: transaction implies %d, "+
					"document declares %d", ErrCountMismatch,
					i, e)
			}

			return i, nil

		case implied.IsSome():
			return implied.UnwrapOr(0), nil

		case explicit.IsSome():
			return explicit.UnwrapOr(0), nil

		default:
			return 0, ErrMissingCounts
		}
	}

	in, err := check(numInputs, p.InputCount)
	if err != nil {
		return 0, 0, err
	}

	out, err := check(numOutputs, p.OutputCount)
	if err != nil {
		return 0, 0, err
	}

	// Every map is at least one separator byte, so a count beyond the
	// maximum message size is certainly bogus.
	if in > wire.MaxMessagePayload || out > wire.MaxMessagePayload {
		return 0, 0, fmt.Errorf("%w: %d inputs, %d outputs",
			ErrCountMismatch, in, out)
	}

	return in, out, nil
}

func (p *Packet) decodeGlobals(r io.Reader) error {
	keys := make(keySet)
	for {
		kv, err := readKVPair(r)
		if err != nil {
			return err
		}
		if kv == nil {
			return nil
		}

		if !keys.add(kv) {
			return &KeyError{
				Map: mapGlobal, KeyType: kv.keyType,
				Err: ErrDuplicateKey,
			}
		}

		if err := p.decodeGlobal(kv); err != nil {
			return &KeyError{
				Map: mapGlobal, KeyType: kv.keyType, Err: err,
			}
		}
	}
}

func (p *Packet) decodeGlobal(kv *kvPair) error {
	switch GlobalType(kv.keyType) {
	case UnsignedTxType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}

		tx := wire.NewMsgTx(wire.TxVersion)
		err := tx.DeserializeNoWitness(bytes.NewReader(kv.value))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}

		for _, txIn := range tx.TxIn {
			if len(txIn.SignatureScript) != 0 ||
				len(txIn.Witness) != 0 {

				return ErrSignedUnsignedTx
			}
		}
		p.UnsignedTx = tx

	case XpubType:
		if len(kv.keyData) != xpubLen {
			return fmt.Errorf("%w: xpub of length %d",
				ErrInvalidKeyData, len(kv.keyData))
		}

		source, err := readKeySource(kv.value)
		if err != nil {
			return err
		}

		if p.Xpubs == nil {
			p.Xpubs = make(map[string]KeySource)
		}
		p.Xpubs[string(kv.keyData)] = source

	case TxVersionType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		p.TxVersion = fn.Some(int32(v))

	case FallbackLockTimeType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		p.FallbackLockTime = fn.Some(v)

	case InputCountType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}

		n, err := readCompactSize(kv.value)
		if err != nil {
			return err
		}
		p.InputCount = fn.Some(n)

	case OutputCountType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}

		n, err := readCompactSize(kv.value)
		if err != nil {
			return err
		}
		p.OutputCount = fn.Some(n)

	case TxModifiableType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := expectValueLen(kv, 1); err != nil {
			return err
		}
		p.TxModifiable = fn.Some(kv.value[0])

	case VersionType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		p.Version = fn.Some(v)

	case ProprietaryGlobalType:
		p.Proprietary = putBytes(p.Proprietary, kv.keyData, kv.value)

	default:
		p.Unknowns = putBytes(p.Unknowns, kv.key(), kv.value)
	}

	return nil
}

func (in *Input) decode(r io.Reader, idx int) error {
	keys := make(keySet)
	for {
		kv, err := readKVPair(r)
		if err != nil {
			return err
		}
		if kv == nil {
			return nil
		}

		if !keys.add(kv) {
			return &KeyError{
				Map: mapInput, Index: idx, KeyType: kv.keyType,
				Err: ErrDuplicateKey,
			}
		}

		if err := in.decodeEntry(kv); err != nil {
			return &KeyError{
				Map: mapInput, Index: idx, KeyType: kv.keyType,
				Err: err,
			}
		}
	}
}

//nolint:funlen
func (in *Input) decodeEntry(kv *kvPair) error {
	switch InputType(kv.keyType) {
	case NonWitnessUtxoType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}

		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(kv.value)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		in.NonWitnessUtxo = tx

	case WitnessUtxoType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}

		out, err := readTxOut(kv.value)
		if err != nil {
			return err
		}
		in.WitnessUtxo = out

	case PartialSigType:
		if err := validatePubKey(kv.keyData); err != nil {
			return err
		}
		if err := validateECDSASig(kv.value); err != nil {
			return err
		}
		in.PartialSigs = putBytes(in.PartialSigs, kv.keyData, kv.value)

	case SighashType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		in.SighashType = fn.Some(txscript.SigHashType(v))

	case RedeemScriptInputType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		in.RedeemScript = kv.value

	case WitnessScriptInputType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		in.WitnessScript = kv.value

	case Bip32DerivationInputType:
		if err := validatePubKey(kv.keyData); err != nil {
			return err
		}

		source, err := readKeySource(kv.value)
		if err != nil {
			return err
		}
		in.Bip32Derivation = putKeySource(
			in.Bip32Derivation, kv.keyData, source,
		)

	case FinalScriptSigType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		in.FinalScriptSig = fn.Some(kv.value)

	case FinalScriptWitnessType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}

		witness, err := ReadTxWitness(kv.value)
		if err != nil {
			return err
		}
		in.FinalScriptWitness = witness

	case Ripemd160PreimageType:
		var hash [20]byte
		if err := readPreimage(kv, hash[:], ripemd160Sum); err != nil {
			return err
		}
		if in.Ripemd160Preimages == nil {
			in.Ripemd160Preimages = make(map[[20]byte][]byte)
		}
		in.Ripemd160Preimages[hash] = kv.value

	case Sha256PreimageType:
		var hash [32]byte
		if err := readPreimage(kv, hash[:], sha256Sum); err != nil {
			return err
		}
		if in.Sha256Preimages == nil {
			in.Sha256Preimages = make(map[[32]byte][]byte)
		}
		in.Sha256Preimages[hash] = kv.value

	case Hash160PreimageType:
		var hash [20]byte
		err := readPreimage(kv, hash[:], btcutil.Hash160)
		if err != nil {
			return err
		}
		if in.Hash160Preimages == nil {
			in.Hash160Preimages = make(map[[20]byte][]byte)
		}
		in.Hash160Preimages[hash] = kv.value

	case Hash256PreimageType:
		var hash [32]byte
		err := readPreimage(kv, hash[:], chainhash.DoubleHashB)
		if err != nil {
			return err
		}
		if in.Hash256Preimages == nil {
			in.Hash256Preimages = make(map[[32]byte][]byte)
		}
		in.Hash256Preimages[hash] = kv.value

	case PreviousTxidType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := expectValueLen(kv, chainhash.HashSize); err != nil {
			return err
		}

		var txid chainhash.Hash
		copy(txid[:], kv.value)
		in.PreviousTxid = fn.Some(txid)

	case OutputIndexType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		in.OutputIndex = fn.Some(v)

	case SequenceType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		in.Sequence = fn.Some(v)

	case RequiredTimeLockTimeType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		if v < txscript.LockTimeThreshold {
			return fmt.Errorf("%w: time lock %d below threshold",
				ErrInvalidValue, v)
		}
		in.MinTime = fn.Some(v)

	case RequiredHeightLockTimeType:
		v, err := readUint32(kv)
		if err != nil {
			return err
		}
		if v == 0 || v >= txscript.LockTimeThreshold {
			return fmt.Errorf("%w: height lock %d out of range",
				ErrInvalidValue, v)
		}
		in.MinHeight = fn.Some(v)

	case TapKeySigType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := validateSchnorrSig(kv.value); err != nil {
			return err
		}
		in.TapKeySig = kv.value

	case TapScriptSigType:
		if len(kv.keyData) != 64 {
			return fmt.Errorf("%w: tap script sig key of length %d",
				ErrInvalidKeyData, len(kv.keyData))
		}
		if err := validateSchnorrSig(kv.value); err != nil {
			return err
		}

		var key TapScriptSigKey
		copy(key.XOnlyPubKey[:], kv.keyData[:32])
		copy(key.LeafHash[:], kv.keyData[32:])
		if in.TapScriptSigs == nil {
			in.TapScriptSigs = make(map[TapScriptSigKey][]byte)
		}
		in.TapScriptSigs[key] = kv.value

	case TapLeafScriptType:
		if len(kv.keyData) < controlBlockBaseLen ||
			(len(kv.keyData)-controlBlockBaseLen)%32 != 0 {

			return fmt.Errorf("%w: control block of length %d",
				ErrInvalidKeyData, len(kv.keyData))
		}
		if len(kv.value) == 0 {
			return fmt.Errorf("%w: empty leaf script", ErrInvalidValue)
		}

		last := len(kv.value) - 1
		if in.TapLeafScripts == nil {
			in.TapLeafScripts = make(map[string]TapLeaf)
		}
		in.TapLeafScripts[string(kv.keyData)] = TapLeaf{
			Script: kv.value[:last],
			LeafVersion: txscript.TapscriptLeafVersion(
				kv.value[last],
			),
		}

	case TapBip32DerivationInType:
		xOnly, source, err := readTapDerivation(kv)
		if err != nil {
			return err
		}
		if in.TapBip32Derivation == nil {
			in.TapBip32Derivation = make(map[[32]byte]TapKeySource)
		}
		in.TapBip32Derivation[xOnly] = source

	case TapInternalKeyInputType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := validateXOnlyKey(kv.value); err != nil {
			return err
		}
		in.TapInternalKey = kv.value

	case TapMerkleRootType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := expectValueLen(kv, chainhash.HashSize); err != nil {
			return err
		}
		in.TapMerkleRoot = kv.value

	case ProprietaryInputType:
		in.Proprietary = putBytes(in.Proprietary, kv.keyData, kv.value)

	default:
		in.Unknowns = putBytes(in.Unknowns, kv.key(), kv.value)
	}

	return nil
}

func (out *Output) decode(r io.Reader, idx int) error {
	keys := make(keySet)
	for {
		kv, err := readKVPair(r)
		if err != nil {
			return err
		}
		if kv == nil {
			return nil
		}

		if !keys.add(kv) {
			return &KeyError{
				Map: mapOutput, Index: idx, KeyType: kv.keyType,
				Err: ErrDuplicateKey,
			}
		}

		if err := out.decodeEntry(kv); err != nil {
			return &KeyError{
				Map: mapOutput, Index: idx, KeyType: kv.keyType,
				Err: err,
			}
		}
	}
}

func (out *Output) decodeEntry(kv *kvPair) error {
	switch OutputType(kv.keyType) {
	case RedeemScriptOutputType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		out.RedeemScript = kv.value

	case WitnessScriptOutputType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		out.WitnessScript = kv.value

	case Bip32DerivationOutType:
		if err := validatePubKey(kv.keyData); err != nil {
			return err
		}

		source, err := readKeySource(kv.value)
		if err != nil {
			return err
		}
		out.Bip32Derivation = putKeySource(
			out.Bip32Derivation, kv.keyData, source,
		)

	case AmountType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := expectValueLen(kv, 8); err != nil {
			return err
		}
		out.Amount = fn.Some(
			int64(binary.LittleEndian.Uint64(kv.value)),
		)

	case ScriptType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		out.Script = fn.Some(kv.value)

	case TapInternalKeyOutputType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if err := validateXOnlyKey(kv.value); err != nil {
			return err
		}
		out.TapInternalKey = kv.value

	case TapTreeType:
		if err := expectNoKeyData(kv); err != nil {
			return err
		}
		if len(kv.value) == 0 {
			return fmt.Errorf("%w: empty tap tree", ErrInvalidValue)
		}
		out.TapTree = kv.value

	case TapBip32DerivationOutType:
		xOnly, source, err := readTapDerivation(kv)
		if err != nil {
			return err
		}
		if out.TapBip32Derivation == nil {
			out.TapBip32Derivation = make(map[[32]byte]TapKeySource)
		}
		out.TapBip32Derivation[xOnly] = source

	case ProprietaryOutputType:
		out.Proprietary = putBytes(out.Proprietary, kv.keyData, kv.value)

	default:
		out.Unknowns = putBytes(out.Unknowns, kv.key(), kv.value)
	}

	return nil
}

// readUint32 parses a four byte little endian value of a key without key
// data.
func readUint32(kv *kvPair) (uint32, error) {
	if err := expectNoKeyData(kv); err != nil {
		return 0, err
	}
	if err := expectValueLen(kv, 4); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(kv.value), nil
}

func readTapDerivation(kv *kvPair) ([32]byte, TapKeySource, error) {
	var xOnly [32]byte
	if err := validateXOnlyKey(kv.keyData); err != nil {
		return xOnly, TapKeySource{}, err
	}
	copy(xOnly[:], kv.keyData)

	source, err := readTapKeySource(kv.value)
	if err != nil {
		return xOnly, TapKeySource{}, err
	}

	return xOnly, source, nil
}

// readPreimage checks that the key data is a hash of the right size and that
// the value hashes to it.
func readPreimage(kv *kvPair, hash []byte, sum func([]byte) []byte) error {
	if len(kv.keyData) != len(hash) {
		return fmt.Errorf("%w: hash of length %d", ErrInvalidKeyData,
			len(kv.keyData))
	}
	copy(hash, kv.keyData)

	if !bytes.Equal(sum(kv.value), hash) {
		return ErrPreimageMismatch
	}

	return nil
}

func ripemd160Sum(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)

	return h.Sum(nil)
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// validatePubKey accepts a compressed or uncompressed public key.
func validatePubKey(keyData []byte) error {
	if len(keyData) != btcec.PubKeyBytesLenCompressed &&
		len(keyData) != secp256k1.PubKeyBytesLenUncompressed {

		return fmt.Errorf("%w: public key of length %d",
			ErrInvalidKeyData, len(keyData))
	}

	if _, err := btcec.ParsePubKey(keyData); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
	}

	return nil
}

// validateXOnlyKey accepts a 32 byte BIP-340 public key.
func validateXOnlyKey(key []byte) error {
	if _, err := schnorr.ParsePubKey(key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyData, err)
	}

	return nil
}

// validateECDSASig accepts a DER signature followed by the sighash byte.
func validateECDSASig(sig []byte) error {
	if len(sig) < 2 {
		return fmt.Errorf("%w: signature too short", ErrInvalidValue)
	}

	if _, err := ecdsa.ParseDERSignature(sig[:len(sig)-1]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return nil
}

// validateSchnorrSig accepts a 64 byte signature, optionally followed by a
// non default sighash byte.
func validateSchnorrSig(sig []byte) error {
	switch len(sig) {
	case schnorr.SignatureSize:
	case schnorr.SignatureSize + 1:
		if sig[schnorr.SignatureSize] == byte(txscript.SigHashDefault) {
			return fmt.Errorf("%w: explicit default sighash",
				ErrInvalidValue)
		}

	default:
		return fmt.Errorf("%w: schnorr signature of length %d",
			ErrInvalidValue, len(sig))
	}

	_, err := schnorr.ParseSignature(sig[:schnorr.SignatureSize])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return nil
}

func putBytes(m map[string][]byte, key, value []byte) map[string][]byte {
	if m == nil {
		m = make(map[string][]byte)
	}
	m[string(key)] = value

	return m
}

func putKeySource(m map[string]KeySource, key []byte,
	source KeySource) map[string]KeySource {

	if m == nil {
		m = make(map[string]KeySource)
	}
	m[string(key)] = source

	return m
}
