// Package occupancy decides who controls a flat and which part of the flat's
// gate history each occupant may see.
//
// A flat is controlled by its active tenants when it has any, otherwise by its
// active owners. Co-owners (and co-tenants) form one undivided controller.
// Nothing here is cached: every call reads the directory again.
package occupancy

import (
	"context"
	"time"

	"gatehouse/internal/directory/models"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
)

// Kind tags who currently controls a flat.
type Kind string

const (
	KindTenant Kind = "TENANT"
	KindOwner  Kind = "OWNER"
)

// Directory is the read side of the account directory.
type Directory interface {
	FindActiveAccounts(ctx context.Context, society domain.SocietyID, flatNo string, role domain.Role) ([]*models.Account, error)
	ListTenancies(ctx context.Context, society domain.SocietyID, flatNo string) ([]models.Tenancy, error)
}

// Controllers is the resolved controller set of one flat.
type Controllers struct {
	Kind     Kind
	FlatNo   string
	Accounts []*models.Account
}

func (c Controllers) Empty() bool {
	return len(c.Accounts) == 0
}

// Contains reports whether id is one of the controllers.
func (c Controllers) Contains(id domain.AccountID) bool {
	for _, a := range c.Accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Tokens returns the controllers' device tokens, deduplicated.
func (c Controllers) Tokens() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range c.Accounts {
		for _, t := range a.DeviceTokens {
			if _, dup := seen[t]; dup || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Controllers resolves the flat's current controllers. An unoccupied flat
// yields an empty set; callers decide what that means.
func (r *Resolver) Controllers(ctx context.Context, society domain.SocietyID, flatNo string) (Controllers, error) {
	flatNo = domain.NormalizeFlat(flatNo)
	tenants, err := r.dir.FindActiveAccounts(ctx, society, flatNo, domain.RoleTenant)
	if err != nil {
		return Controllers{}, err
	}
	if len(tenants) > 0 {
		return Controllers{Kind: KindTenant, FlatNo: flatNo, Accounts: tenants}, nil
	}
	owners, err := r.dir.FindActiveAccounts(ctx, society, flatNo, domain.RoleOwner)
	if err != nil {
		return Controllers{}, err
	}
	return Controllers{Kind: KindOwner, FlatNo: flatNo, Accounts: owners}, nil
}

// Window is the half-open interval [From, To). A nil To is unbounded.
type Window struct {
	From time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	return w.To == nil || t.Before(*w.To)
}

// Visibility is the slice of a flat's history one occupant may read.
//
// A tenant reads only its own window, starting at its activation. An owner
// reads everything outside every tenancy window the flat has had, so records
// created during a tenancy never reach the owner and records created after
// the tenancy ended never reach the tenant. A record created exactly at a
// tenant's activation belongs to the tenant.
type Visibility struct {
	Kind    Kind
	FlatNo  string
	Include *Window
	Exclude []Window
}

// Allows reports whether a record created at createdAt is visible.
func (v Visibility) Allows(createdAt time.Time) bool {
	if v.Include != nil && !v.Include.Contains(createdAt) {
		return false
	}
	for _, w := range v.Exclude {
		if w.Contains(createdAt) {
			return false
		}
	}
	return true
}

// Visibility computes what actor may see of its own flat's history.
// Only an active tenant or active owner of the flat gets a view.
func (r *Resolver) Visibility(ctx context.Context, actor domain.Principal) (Visibility, error) {
	flatNo := domain.NormalizeFlat(actor.FlatNo)
	if flatNo == "" {
		return Visibility{}, dErrors.New(dErrors.CodeForbidden, "account is not attached to a flat")
	}

	tenants, err := r.dir.FindActiveAccounts(ctx, actor.SocietyID, flatNo, domain.RoleTenant)
	if err != nil {
		return Visibility{}, err
	}
	for _, t := range tenants {
		if t.ID == actor.AccountID {
			return Visibility{
				Kind:    KindTenant,
				FlatNo:  flatNo,
				Include: &Window{From: t.CreatedAt},
			}, nil
		}
	}

	owners, err := r.dir.FindActiveAccounts(ctx, actor.SocietyID, flatNo, domain.RoleOwner)
	if err != nil {
		return Visibility{}, err
	}
	if !(Controllers{Accounts: owners}).Contains(actor.AccountID) {
		return Visibility{}, dErrors.New(dErrors.CodeForbidden, "account does not occupy this flat")
	}

	tenancies, err := r.dir.ListTenancies(ctx, actor.SocietyID, flatNo)
	if err != nil {
		return Visibility{}, err
	}
	exclude := make([]Window, 0, len(tenancies))
	for _, t := range tenancies {
		exclude = append(exclude, Window{From: t.Start, To: t.End})
	}
	return Visibility{Kind: KindOwner, FlatNo: flatNo, Exclude: exclude}, nil
}
