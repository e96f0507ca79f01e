// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package roles implements the BIP-370 role workflow on top of package
// psbtv2.
//
// A document moves through the roles in order:
//
//	Creator -> Constructor -> Updater -> Signer -> Finalizer -> Extractor
//
// Each role checks its preconditions before touching the document and hands
// the document on to the next role. A failed transition returns a RoleError
// that carries the document exactly as it was given, so no work is lost.
//
// The Constructor is parameterized by a marker type naming which parts of
// the transaction it may change. Adding an input is only possible on a
// Constructor[Modifiable] or Constructor[InputsOnlyModifiable], adding an
// output only on a Constructor[Modifiable] or
// Constructor[OutputsOnlyModifiable]. The modifiable flags of the document
// are checked again at run time, so closing a set with NoMoreInputs or
// NoMoreOutputs makes later additions fail.
//
// Signing, finalizing and extracting delegate the script specific work to
// the InputSigner, InputFinalizer and TxExtractor collaborators. The
// defaults are built on btcd's txscript and btcutil/psbt packages.
package roles
