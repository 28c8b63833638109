package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("fixed-salt-value")
	k1 := DeriveKey([]byte("secret"), salt)
	k2 := DeriveKey([]byte("secret"), salt)
	assert.Len(t, k1, KeyLength)
	assert.Equal(t, k1, k2)

	k3 := DeriveKey([]byte("other"), salt)
	assert.NotEqual(t, k1, k3)
}

func TestVerifier(t *testing.T) {
	key := DeriveKey([]byte("secret"), []byte("salt-salt-salt-1"))
	v := MakeVerifier(key)
	assert.True(t, CheckVerifier(key, v))
	assert.False(t, CheckVerifier(DeriveKey([]byte("wrong"), []byte("salt-salt-salt-1")), v))
}

func TestSealOpen(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeyLength)
	s, err := NewSealer(key)
	require.NoError(t, err)

	a, err := s.Seal([]byte("hello"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh nonce per seal")

	plain, err := s.Open(a)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plain)

	a[len(a)-1] ^= 1
	_, err = s.Open(a)
	assert.ErrorIs(t, err, ErrOpen)

	_, err = s.Open([]byte{1, 2})
	assert.ErrorIs(t, err, ErrOpen)

	other, err := NewSealer(bytes.Repeat([]byte{8}, KeyLength))
	require.NoError(t, err)
	_, err = other.Open(b)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}
