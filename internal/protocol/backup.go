package protocol

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

var (
	ErrBackupLength   = errors.New("backup payload has wrong length")
	ErrBackupChecksum = errors.New("backup payload checksum mismatch")
)

// IdentityBackup is the decoded content of an identity backup: who we are
// and the private key that proves it.
type IdentityBackup struct {
	ID   ContactID
	Keys KeyPair
}

// MarshalDecoded lays the backup out as salt, identity, private key and a
// two byte checksum. Encoding and encryption of the result happen elsewhere.
func (b IdentityBackup) MarshalDecoded(salt [BackupSaltLength]byte) ([]byte, error) {
	if len(b.ID) != IdentityLength {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContactID, b.ID)
	}
	out := make([]byte, 0, BackupDecodedLength)
	out = append(out, salt[:]...)
	out = append(out, b.ID...)
	out = append(out, b.Keys.Private[:]...)
	sum := backupChecksum(b.ID, b.Keys.Private[:])
	out = append(out, sum[:]...)
	return out, nil
}

// UnmarshalDecodedBackup parses a payload produced by MarshalDecoded and
// recomputes the public key.
func UnmarshalDecodedBackup(data []byte) (IdentityBackup, [BackupSaltLength]byte, error) {
	var salt [BackupSaltLength]byte
	if len(data) != BackupDecodedLength {
		return IdentityBackup{}, salt, fmt.Errorf("%w: got %d, want %d", ErrBackupLength, len(data), BackupDecodedLength)
	}
	copy(salt[:], data[:BackupSaltLength])
	rest := data[BackupSaltLength:]

	id, err := ParseContactID(string(rest[:IdentityLength]))
	if err != nil {
		return IdentityBackup{}, salt, err
	}
	priv := rest[IdentityLength : IdentityLength+KeyLength]
	sum := rest[IdentityLength+KeyLength:]
	want := backupChecksum(id, priv)
	if subtle.ConstantTimeCompare(sum, want[:]) != 1 {
		return IdentityBackup{}, salt, ErrBackupChecksum
	}

	keys, err := KeyPairFromPrivate(priv)
	if err != nil {
		return IdentityBackup{}, salt, err
	}
	return IdentityBackup{ID: id, Keys: keys}, salt, nil
}

func backupChecksum(id ContactID, priv []byte) [BackupHashLength]byte {
	h := sha256.New()
	h.Write([]byte(id))
	h.Write(priv)
	var sum [BackupHashLength]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
