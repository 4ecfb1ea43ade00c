package domain

import (
	"github.com/google/uuid"

	dErrors "gatehouse/pkg/domain-errors"
)

// Typed identifiers. Distinct named types keep an AccountID from being passed
// where a VisitorID is expected.
type (
	AccountID uuid.UUID
	SocietyID uuid.UUID
	VisitorID uuid.UUID
)

func (i AccountID) String() string { return uuid.UUID(i).String() }
func (i SocietyID) String() string { return uuid.UUID(i).String() }
func (i VisitorID) String() string { return uuid.UUID(i).String() }

func (i AccountID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i SocietyID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (i VisitorID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }

func (i AccountID) MarshalText() ([]byte, error) { return uuid.UUID(i).MarshalText() }
func (i SocietyID) MarshalText() ([]byte, error) { return uuid.UUID(i).MarshalText() }
func (i VisitorID) MarshalText() ([]byte, error) { return uuid.UUID(i).MarshalText() }

func (i *AccountID) UnmarshalText(b []byte) error { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *SocietyID) UnmarshalText(b []byte) error { return (*uuid.UUID)(i).UnmarshalText(b) }
func (i *VisitorID) UnmarshalText(b []byte) error { return (*uuid.UUID)(i).UnmarshalText(b) }

func NewAccountID() AccountID { return AccountID(uuid.New()) }
func NewSocietyID() SocietyID { return SocietyID(uuid.New()) }
func NewVisitorID() VisitorID { return VisitorID(uuid.New()) }

// ParseAccountID parses external input into an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account id")
	return AccountID(u), err
}

// ParseSocietyID parses external input into a SocietyID.
func ParseSocietyID(s string) (SocietyID, error) {
	u, err := parseUUID(s, "society id")
	return SocietyID(u), err
}

// ParseVisitorID parses external input into a VisitorID.
func ParseVisitorID(s string) (VisitorID, error) {
	u, err := parseUUID(s, "visitor id")
	return VisitorID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
