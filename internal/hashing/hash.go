// Package hashing provides the content-addressing primitives used to bind
// models, inputs, outputs and proofs into a receipt. All digests are
// Keccak-256, rendered as "0x"-prefixed lowercase hex.
package hashing

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// DigestLen is the byte length of a Keccak-256 digest.
const DigestLen = 32

// HashBytes returns the "0x"-prefixed lowercase hex Keccak-256 digest of b.
func HashBytes(b []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// HashIntTensor serializes each element of t as a signed 32-bit
// little-endian integer, concatenates the bytes, and hashes the result.
// The encoding is part of the wire contract: changing it invalidates
// every historical receipt, so it must never be altered.
func HashIntTensor(t []int32) string {
	buf := make([]byte, 4*len(t))
	for i, v := range t {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return HashBytes(buf)
}

// IsValidDigest reports whether s looks like a "0x"-prefixed 32-byte
// Keccak-256 hex digest (66 characters total).
func IsValidDigest(s string) bool {
	if len(s) != 2+2*DigestLen {
		return false
	}
	if s[0] != '0' || s[1] != 'x' {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
