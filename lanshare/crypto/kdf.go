package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the derived AES-256 key length.
	KeySize = 32
	// Iterations is the PBKDF2 work factor.
	Iterations = 65536
)

// salt is shared by every peer; keys are a pure function of the password.
var salt = []byte("p2p-file-sharer-salt")

// Key is a derived AES-256 key.
type Key [KeySize]byte

// DeriveKey derives the transfer key from a password using PBKDF2-HMAC-SHA256.
// The same password always yields the same key.
func DeriveKey(password string) Key {
	var k Key
	copy(k[:], pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New))
	return k
}
