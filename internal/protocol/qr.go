package protocol

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// IdentityQRPayload is the text another client scans to fully verify a contact.
func IdentityQRPayload(id ContactID, key PublicKey) string {
	return fmt.Sprintf("3mid:%s,%s", id, key)
}

// IdentityQRPNG renders the verification payload as a PNG of the given pixel size.
func IdentityQRPNG(id ContactID, key PublicKey, size int) ([]byte, error) {
	png, err := qrcode.Encode(IdentityQRPayload(id, key), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
