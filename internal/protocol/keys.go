package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

var ErrInvalidKey = errors.New("invalid key")

// PublicKey is a Curve25519 public key.
type PublicKey [KeyLength]byte

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

// ParsePublicKey decodes a hex public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != KeyLength {
		return k, fmt.Errorf("%w: want %d hex bytes", ErrInvalidKey, KeyLength)
	}
	copy(k[:], b)
	return k, nil
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != KeyLength {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(b), KeyLength)
	}
	copy(k[:], b)
	return k, nil
}

// KeyPair is the long-term identity key pair of the local account.
type KeyPair struct {
	Public  PublicKey
	Private [KeyLength]byte
}

// GenerateKeyPair creates a fresh random identity key pair.
func GenerateKeyPair() (KeyPair, error) {
	var priv [KeyLength]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return KeyPair{}, err
	}
	return KeyPairFromPrivate(priv[:])
}

// KeyPairFromPrivate derives the public half for priv.
func KeyPairFromPrivate(priv []byte) (KeyPair, error) {
	if len(priv) != KeyLength {
		return KeyPair{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(priv), KeyLength)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("derive public key: %w", err)
	}
	var kp KeyPair
	copy(kp.Private[:], priv)
	copy(kp.Public[:], pub)
	return kp, nil
}
