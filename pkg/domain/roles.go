package domain

import (
	"encoding/json"
	"slices"
	"strings"

	dErrors "gatehouse/pkg/domain-errors"
)

// Role is a membership an account holds inside its society.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleOwner      Role = "OWNER"
	RoleTenant     Role = "TENANT"
	RoleGuard      Role = "GUARD"
)

var validRoles = map[Role]bool{
	RoleSuperAdmin: true,
	RoleAdmin:      true,
	RoleOwner:      true,
	RoleTenant:     true,
	RoleGuard:      true,
}

// ParseRole validates a role name from external input.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// RoleSet is the set of roles held by one account.
// Membership is checked with Has/HasAll, never by string matching at call sites.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles, ignoring duplicates.
func NewRoleSet(roles ...Role) RoleSet {
	rs := make(RoleSet, len(roles))
	for _, r := range roles {
		rs[r] = struct{}{}
	}
	return rs
}

// ParseRoleSet builds a set from role names, rejecting unknown ones.
func ParseRoleSet(names []string) (RoleSet, error) {
	rs := make(RoleSet, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		rs[r] = struct{}{}
	}
	return rs, nil
}

func (rs RoleSet) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

// HasAll reports whether rs is a superset of roles.
func (rs RoleSet) HasAll(roles ...Role) bool {
	for _, r := range roles {
		if !rs.Has(r) {
			return false
		}
	}
	return true
}

// HasAny reports whether rs shares at least one role with roles.
func (rs RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// Strings returns the role names in sorted order.
func (rs RoleSet) Strings() []string {
	out := make([]string, 0, len(rs))
	for r := range rs {
		out = append(out, string(r))
	}
	slices.Sort(out)
	return out
}

func (rs RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(rs.Strings())
}

func (rs *RoleSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	parsed, err := ParseRoleSet(names)
	if err != nil {
		return err
	}
	*rs = parsed
	return nil
}

// Principal is the authenticated caller as seen by services.
type Principal struct {
	AccountID AccountID
	SocietyID SocietyID
	Roles     RoleSet
	FlatNo    string
}

// IsZero reports whether no caller is attached.
func (p Principal) IsZero() bool {
	return p.AccountID.IsNil()
}
