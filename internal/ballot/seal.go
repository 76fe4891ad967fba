package ballot

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"ballotbox/pkg/platform/sentinel"
)

const (
	sealKeySize = 32
	nonceSize   = 24
)

// NewSealKey generates a per-election sealing key. Each election gets its
// own key so ballots from different elections are never sealed alike.
func NewSealKey() ([]byte, error) {
	key := make([]byte, sealKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate seal key: %w", err)
	}
	return key, nil
}

// Seal encrypts a ballot choice under the election's key. The random nonce
// is prepended to the box, so identical choices produce distinct ciphertexts.
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != sealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes: %w", sealKeySize, sentinel.ErrInvalidState)
	}
	var k [sealKeySize]byte
	copy(k[:], key)

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &k), nil
}

// Open decrypts a sealed ballot. It fails on truncated input, a wrong key,
// or any bit flipped in the ciphertext.
func Open(key, sealed []byte) ([]byte, error) {
	if len(key) != sealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes: %w", sealKeySize, sentinel.ErrInvalidState)
	}
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed ballot too short: %w", sentinel.ErrInvalidState)
	}
	var k [sealKeySize]byte
	copy(k[:], key)

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &k)
	if !ok {
		return nil, fmt.Errorf("open sealed ballot: %w", sentinel.ErrInvalidState)
	}
	return plaintext, nil
}
