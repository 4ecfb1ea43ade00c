package testutil

import (
	"net/http"

	"gatehouse/pkg/domain"
	"gatehouse/pkg/requestcontext"
)

// WithPrincipal attaches p to the request as the auth middleware would.
func WithPrincipal(req *http.Request, p domain.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// Principal builds an actor of society with the given role. Flat is ignored
// for roles that are not attached to a flat.
func Principal(society domain.SocietyID, role domain.Role, flatNo string) domain.Principal {
	p := domain.Principal{
		AccountID: domain.NewAccountID(),
		SocietyID: society,
		Roles:     domain.NewRoleSet(role),
	}
	if role == domain.RoleOwner || role == domain.RoleTenant {
		p.FlatNo = domain.NormalizeFlat(flatNo)
	}
	return p
}
