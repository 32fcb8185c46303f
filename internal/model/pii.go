package model

// PIIKind is the pattern family of a redacted span. The matched value is
// never recorded.
type PIIKind string

const (
	// PIICard is a 13-19 digit card or long account number.
	PIICard PIIKind = "card_number"
	// PIIAccount is a bare 8-12 digit account number.
	PIIAccount PIIKind = "account_number"
	// PIISSN is an SSN/SIN-like sequence.
	PIISSN PIIKind = "ssn"
	// PIIEmail is an email address.
	PIIEmail PIIKind = "email"
	// PIIPhone is a phone number.
	PIIPhone PIIKind = "phone"
)

// PIIFinding locates one redacted span in the original text.
type PIIFinding struct {
	Kind  PIIKind
	Start int
	End   int
}
