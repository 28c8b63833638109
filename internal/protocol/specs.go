// Package protocol holds the identifiers, key material and wire-format
// constants shared with the messaging network. Only sizes and type bytes
// live here; framing and encryption belong to the transport.
package protocol

// Field widths of the message header.
const (
	IdentityLength       = 8
	KeyLength            = 32
	MessageIDLength      = 8
	TimestampLength      = 4
	FlagsLength          = 1
	ReservedLength       = 3
	PushFromLength       = 32
	GroupIDLength        = 8
	ContentTypeLength    = 1
	DataHeaderTypeLength = 4

	// FullHeaderLength is sender, receiver, message id, time, flags,
	// reserved and push-from name.
	FullHeaderLength = IdentityLength*2 + MessageIDLength + TimestampLength + FlagsLength + ReservedLength + PushFromLength
)

// Crypto box and packet bounds.
const (
	BoxMACLength     = 16
	BoxNonceLength   = 24
	PaddingMaxLength = 255
	PacketMaxLength  = 4096

	// MaxContentPayloadLength is the largest content body that still fits a
	// packet after the outer box, the inner box, nonce, header and maximum padding.
	MaxContentPayloadLength = PacketMaxLength - DataHeaderTypeLength - BoxMACLength - BoxMACLength -
		ContentTypeLength - BoxNonceLength - FullHeaderLength - PaddingMaxLength
)

// Content type bytes.
const (
	SignatureContactText     byte = 0x01
	SignatureContactPicture  byte = 0x02
	SignatureContactLocation byte = 0x10
	SignatureContactVideo    byte = 0x13

	SignatureGroupText        byte = 0x41
	SignatureGroupLocation    byte = 0x42
	SignatureGroupPicture     byte = 0x43
	SignatureGroupVideo       byte = 0x44
	SignatureGroupFile        byte = 0x46
	SignatureGroupCreation    byte = 0x4A
	SignatureGroupTitle       byte = 0x4B
	SignatureGroupLeave       byte = 0x4C
	SignatureGroupPhoto       byte = 0x50
	SignatureGroupSyncRequest byte = 0x51

	SignatureReceipt byte = 0x80
	SignatureTyping  byte = 0x90
)

// Receipt and typing notification type bytes.
const (
	ReceiptTypeReceived byte = 0x01
	ReceiptTypeSeen     byte = 0x02
	ReceiptTypeAgree    byte = 0x03
	ReceiptTypeDisagree byte = 0x04
	TypingTypeStopped   byte = 0x00
	TypingTypeTyping    byte = 0x01
)

// Identity backup layout.
const (
	BackupSaltLength          = 8
	BackupHashLength          = 2
	BackupDecodedLength       = BackupSaltLength + IdentityLength + KeyLength + BackupHashLength
	BackupEncryptionKeyLength = 32
	BackupKeyPBKDFIterations  = 100000
	BackupEncodedLength       = 80
)

// FitsPayload reports whether n bytes of content body fit in a single packet.
func FitsPayload(n int) bool {
	return n >= 0 && n <= MaxContentPayloadLength
}
