// Package cryptox derives the store key from the user's password and seals
// column values with it.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	KeyLength  = 32
	SaltLength = 16

	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

var ErrOpen = errors.New("cannot open sealed value")

// NewSalt returns SaltLength random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKey stretches password into a KeyLength key with argon2id.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, kdfTime, kdfMemory, kdfThreads, KeyLength)
}

// MakeVerifier returns a digest that lets a later open check the key
// without decrypting any data.
func MakeVerifier(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// CheckVerifier compares key against a verifier from MakeVerifier.
func CheckVerifier(key, verifier []byte) bool {
	return subtle.ConstantTimeCompare(MakeVerifier(key), verifier) == 1
}

// Sealer encrypts values with AES-GCM. The nonce is prepended to the ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer for a KeyLength key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("sealer key: got %d bytes, want %d", len(key), KeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, ErrOpen
	}
	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}
