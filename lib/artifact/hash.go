// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of an artifact file.
type Hash [32]byte

// fileDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// artifact files. Domain separation ensures artifact hashes can never
// collide with hashes of the same bytes computed in another context.
// The byte values are the ASCII encoding of the domain name,
// zero-padded to 32 bytes, so the key is inspectable in hex dumps.
// Changing it invalidates all recorded manifests.
var fileDomainKey = [32]byte{
	'l', 'a', 'c', 'k', 'e', 'y', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c', 't', '.',
	'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFile computes the file-domain BLAKE3 keyed hash of data.
func HashFile(data []byte) Hash {
	hasher, err := blake3.NewKeyed(fileDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a wrong key length, which is
		// impossible with a [32]byte.
		panic("artifact: blake3 keyed init: " + err.Error())
	}
	hasher.Write(data)

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the lowercase hex encoding of the hash.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}
