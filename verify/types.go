package verify

import (
	"time"
)

// Level is the PAdES baseline level a signature was classified as.
type Level string

const (
	LevelBB      Level = "B-B"
	LevelBT      Level = "B-T"
	LevelUnknown Level = "Unknown"
)

// CheckLevel ranks a compliance rule.
type CheckLevel string

const (
	CheckMandatory   CheckLevel = "mandatory"
	CheckRecommended CheckLevel = "recommended"
)

// ComplianceCheck is one evaluated rule of the PAdES baseline checklist.
type ComplianceCheck struct {
	Requirement string     `json:"requirement"`
	Satisfied   bool       `json:"satisfied"`
	Level       CheckLevel `json:"level"`
	Details     string     `json:"details,omitempty"`
}

// SignatureMeta is the human-facing metadata read from the signature
// dictionary.
type SignatureMeta struct {
	Name        string `json:"name,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Location    string `json:"location,omitempty"`
	ContactInfo string `json:"contact_info,omitempty"`
}

// Report is the complete outcome of one verification pass. Every rule is
// always evaluated; the booleans summarize, the reasons and checks explain.
type Report struct {
	CryptographicallyValid bool  `json:"cryptographically_valid"`
	PAdESCompliant         bool  `json:"pades_compliant"`
	Timestamped            bool  `json:"timestamped"`
	Level                  Level `json:"level"`

	Reasons []string          `json:"reasons"`
	Checks  []ComplianceCheck `json:"checks"`

	Signature     SignatureMeta `json:"signature"`
	SignatureTime *time.Time    `json:"signature_time,omitempty"`
	Document      *DocumentInfo `json:"document,omitempty"`
}

func (r *Report) addReason(reason string) {
	r.Reasons = append(r.Reasons, reason)
}

// Options tunes a verification pass.
type Options struct {
	// FieldName of the signature field; defaults to Signature1, with the
	// locator falling back to any /ByteRange dictionary.
	FieldName string

	// TrustedRoots is an optional set of accepted root SHA-256
	// fingerprints (lower-case hex).
	TrustedRoots []string

	// At overrides the verification time; zero means the timestamp token's
	// genTime when a token is present and validates, otherwise now.
	At time.Time
}
