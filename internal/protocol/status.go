package protocol

import "fmt"

// AccountStatus is the directory state of an identity.
type AccountStatus int

const (
	AccountStatusUnknown AccountStatus = iota
	AccountStatusActive
	AccountStatusInactive
	AccountStatusInvalid
)

func (s AccountStatus) String() string {
	switch s {
	case AccountStatusActive:
		return "ACTIVE"
	case AccountStatusInactive:
		return "INACTIVE"
	case AccountStatusInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// VerificationStatus tracks how a contact's public key was obtained.
type VerificationStatus int

const (
	VerificationUnverified VerificationStatus = iota
	VerificationServerVerified
	VerificationFullyVerified
)

func (v VerificationStatus) String() string {
	switch v {
	case VerificationServerVerified:
		return "SERVER_VERIFIED"
	case VerificationFullyVerified:
		return "FULLY_VERIFIED"
	default:
		return "UNVERIFIED"
	}
}

// ParseVerificationStatus is the inverse of VerificationStatus.String.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch s {
	case "UNVERIFIED":
		return VerificationUnverified, nil
	case "SERVER_VERIFIED":
		return VerificationServerVerified, nil
	case "FULLY_VERIFIED":
		return VerificationFullyVerified, nil
	}
	return 0, fmt.Errorf("unknown verification status %q", s)
}

// FeatureLevel is the protocol feature level advertised by a client.
type FeatureLevel int

const (
	FeatureLevelUnknown FeatureLevel = -1
	FeatureLevel0       FeatureLevel = 0 // text, images, locations
	FeatureLevel1       FeatureLevel = 1 // groups
	FeatureLevel2       FeatureLevel = 2 // audio
	FeatureLevel3       FeatureLevel = 3 // files
)

func (f FeatureLevel) String() string {
	if f == FeatureLevelUnknown {
		return "UNKNOWN"
	}
	return fmt.Sprintf("LEVEL_%d", int(f))
}

// Location is a shared geographic position.
type Location struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	Height      float64 `json:"height,omitempty"`
	Address     string  `json:"address,omitempty"`
	Description string  `json:"description,omitempty"`
}
