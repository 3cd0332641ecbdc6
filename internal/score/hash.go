package score

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPlayerName returns the SHA-256 digest of the whole name. No salt is
// applied, so equal names always map to equal digests.
func HashPlayerName(name []byte) [32]byte {
	return sha256.Sum256(name)
}

// NormalizeHash fits raw into 32 bytes, zero-padding short input and
// dropping everything past byte 32.
func NormalizeHash(raw []byte) [32]byte {
	var out [32]byte
	copy(out[:], raw)
	return out
}

// HexDigest is a convenience for logs and storage
func HexDigest(d [32]byte) string {
	return hex.EncodeToString(d[:])
}
