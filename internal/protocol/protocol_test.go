package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderAndPayloadBounds(t *testing.T) {
	assert.Equal(t, 64, FullHeaderLength)
	assert.Equal(t, 3716, MaxContentPayloadLength)
	assert.Equal(t, 50, BackupDecodedLength)

	assert.True(t, FitsPayload(0))
	assert.True(t, FitsPayload(MaxContentPayloadLength))
	assert.False(t, FitsPayload(MaxContentPayloadLength+1))
	assert.False(t, FitsPayload(-1))
}

func TestParseContactID(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"ABCDEFGH", true},
		{"*SUPPORT", true},
		{"0123ABCD", true},
		{"abcdefgh", false},
		{"ABCDEFG", false},
		{"ABCDEFGHI", false},
		{"AB*DEFGH", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseContactID(tt.in)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidContactID)
			}
		})
	}
}

func TestGroupIDRoundTrip(t *testing.T) {
	g := GroupID{Creator: "ABCDEFGH", Seq: 0xdeadbeef}
	assert.Equal(t, "ABCDEFGH:00000000deadbeef", g.String())

	parsed, err := ParseGroupID(g.String())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)

	_, err = ParseGroupID("ABCDEFGH")
	assert.ErrorIs(t, err, ErrInvalidGroupID)
	_, err = ParseGroupID("ABCDEFGH:zz")
	assert.ErrorIs(t, err, ErrInvalidGroupID)
}

func TestKeyPairFromPrivateIsDeterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, kp.Public.IsZero())

	again, err := KeyPairFromPrivate(kp.Private[:])
	require.NoError(t, err)
	assert.Equal(t, kp, again)

	_, err = KeyPairFromPrivate([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestBackupLayout(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	b := IdentityBackup{ID: "ABCDEFGH", Keys: kp}
	salt := [BackupSaltLength]byte{1, 2, 3, 4, 5, 6, 7, 8}

	data, err := b.MarshalDecoded(salt)
	require.NoError(t, err)
	require.Len(t, data, BackupDecodedLength)
	assert.Equal(t, salt[:], data[:8])
	assert.Equal(t, []byte("ABCDEFGH"), data[8:16])
	assert.True(t, bytes.Equal(kp.Private[:], data[16:48]))

	decoded, gotSalt, err := UnmarshalDecodedBackup(data)
	require.NoError(t, err)
	assert.Equal(t, salt, gotSalt)
	assert.Equal(t, b, decoded)

	data[49] ^= 0xff
	_, _, err = UnmarshalDecodedBackup(data)
	assert.ErrorIs(t, err, ErrBackupChecksum)

	_, _, err = UnmarshalDecodedBackup(data[:40])
	assert.ErrorIs(t, err, ErrBackupLength)
}

func TestIdentityQR(t *testing.T) {
	var key PublicKey
	key[0] = 0xab
	payload := IdentityQRPayload("ABCDEFGH", key)
	assert.Equal(t, "3mid:ABCDEFGH,ab"+string(bytes.Repeat([]byte("00"), 31)), payload)

	png, err := IdentityQRPNG("ABCDEFGH", key, 128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
