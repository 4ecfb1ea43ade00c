package models

import (
	"slices"
	"strings"
	"time"

	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive              AccountStatus = "ACTIVE"
	StatusBlocked             AccountStatus = "BLOCKED"
	StatusPendingVerification AccountStatus = "PENDING_VERIFICATION"
	StatusInactive            AccountStatus = "INACTIVE"
)

func (s AccountStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusBlocked, StatusPendingVerification, StatusInactive:
		return true
	}
	return false
}

// Account is a person registered with a society.
//
// Invariants:
//   - FlatNo is stored normalized (trimmed, upper-cased)
//   - CreatedAt is the activation time and is immutable; it anchors the
//     tenant's visibility window over the flat's gate history
//   - DeactivatedAt is set once, when the account leaves the flat
type Account struct {
	ID            domain.AccountID `json:"id"`
	SocietyID     domain.SocietyID `json:"societyId"`
	Name          string           `json:"name"`
	Mobile        string           `json:"mobile"`
	Roles         domain.RoleSet   `json:"roles"`
	FlatNo        string           `json:"flatNo,omitempty"`
	Status        AccountStatus    `json:"status"`
	DeviceTokens  []string         `json:"-"`
	CreatedAt     time.Time        `json:"createdAt"`
	DeactivatedAt *time.Time       `json:"deactivatedAt,omitempty"`
}

// NewAccount validates and constructs an active account.
func NewAccount(id domain.AccountID, society domain.SocietyID, name, mobile string, roles domain.RoleSet, flatNo string, now time.Time) (*Account, error) {
	name = strings.TrimSpace(name)
	mobile = strings.TrimSpace(mobile)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account name cannot be empty")
	}
	if mobile == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account mobile cannot be empty")
	}
	if len(roles) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account needs at least one role")
	}
	flatNo = domain.NormalizeFlat(flatNo)
	if roles.HasAny(domain.RoleOwner, domain.RoleTenant) && flatNo == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owners and tenants must be attached to a flat")
	}
	return &Account{
		ID:        id,
		SocietyID: society,
		Name:      name,
		Mobile:    mobile,
		Roles:     roles,
		FlatNo:    flatNo,
		Status:    StatusActive,
		CreatedAt: now,
	}, nil
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// Principal returns the authorization view of the account.
func (a *Account) Principal() domain.Principal {
	return domain.Principal{
		AccountID: a.ID,
		SocietyID: a.SocietyID,
		Roles:     a.Roles,
		FlatNo:    a.FlatNo,
	}
}

// CanDeactivate checks the account can leave its flat.
func (a *Account) CanDeactivate() error {
	if a.DeactivatedAt != nil || a.Status == StatusInactive {
		return dErrors.New(dErrors.CodeInvariantViolation, "account is already inactive")
	}
	return nil
}

// ApplyDeactivation marks the account inactive at now.
// Call CanDeactivate first.
func (a *Account) ApplyDeactivation(now time.Time) {
	a.Status = StatusInactive
	a.DeactivatedAt = &now
}

// AddDeviceToken registers a push token, ignoring blanks and duplicates.
// Returns false when nothing changed.
func (a *Account) AddDeviceToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || slices.Contains(a.DeviceTokens, token) {
		return false
	}
	a.DeviceTokens = append(a.DeviceTokens, token)
	return true
}

// Tenancy is one tenant's occupancy window over a flat: [Start, End).
// A nil End means the tenancy is ongoing.
type Tenancy struct {
	AccountID domain.AccountID
	Start     time.Time
	End       *time.Time
}

// Tenancy returns the window a tenant account held its flat.
//
// Accounts pending verification never occupied the flat. An account that left
// ACTIVE without a recorded end (blocked in place) has no window either: the
// owners who now control the flat read its history, matching who may act on it.
func (a *Account) Tenancy() (Tenancy, bool) {
	if !a.Roles.Has(domain.RoleTenant) || a.Status == StatusPendingVerification {
		return Tenancy{}, false
	}
	if !a.IsActive() && a.DeactivatedAt == nil {
		return Tenancy{}, false
	}
	return Tenancy{AccountID: a.ID, Start: a.CreatedAt, End: a.DeactivatedAt}, true
}

// FlatSummary is the guard-facing view of an occupied flat.
type FlatSummary struct {
	FlatNo         string `json:"flatNo"`
	ControllerName string `json:"controllerName"`
	Occupancy      string `json:"occupancy"`
}
