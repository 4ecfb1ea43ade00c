package occupancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/internal/directory/models"
	"gatehouse/internal/directory/store"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
)

type flatFixture struct {
	ctx     context.Context
	store   *store.InMemory
	society domain.SocietyID
}

func newFlatFixture() *flatFixture {
	return &flatFixture{ctx: context.Background(), store: store.NewInMemory(), society: domain.NewSocietyID()}
}

func (f *flatFixture) add(t *testing.T, mobile string, role domain.Role, flat string, at time.Time, tokens ...string) *models.Account {
	t.Helper()
	a, err := models.NewAccount(domain.NewAccountID(), f.society, "Resident "+mobile, mobile, domain.NewRoleSet(role), flat, at)
	require.NoError(t, err)
	for _, tok := range tokens {
		a.AddDeviceToken(tok)
	}
	require.NoError(t, f.store.Create(f.ctx, a))
	return a
}

func (f *flatFixture) deactivate(t *testing.T, a *models.Account, at time.Time) {
	t.Helper()
	_, err := f.store.Execute(f.ctx, a.ID, (*models.Account).CanDeactivate, func(acc *models.Account) {
		acc.ApplyDeactivation(at)
	})
	require.NoError(t, err)
}

func TestControllersPreferTenants(t *testing.T) {
	f := newFlatFixture()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	owner := f.add(t, "9400000001", domain.RoleOwner, "A-101", base, "owner-tok")
	tenant := f.add(t, "9400000002", domain.RoleTenant, "A-101", base.Add(time.Hour), "tenant-tok", "tenant-tok")
	r := NewResolver(f.store)

	c, err := r.Controllers(f.ctx, f.society, " a-101 ")
	require.NoError(t, err)
	assert.Equal(t, KindTenant, c.Kind)
	assert.True(t, c.Contains(tenant.ID))
	assert.False(t, c.Contains(owner.ID))
	assert.Equal(t, []string{"tenant-tok"}, c.Tokens())

	f.deactivate(t, tenant, base.Add(48*time.Hour))

	c, err = r.Controllers(f.ctx, f.society, "A-101")
	require.NoError(t, err)
	assert.Equal(t, KindOwner, c.Kind)
	assert.True(t, c.Contains(owner.ID))
	assert.Equal(t, []string{"owner-tok"}, c.Tokens())
}

func TestControllersCoOwnersShareControl(t *testing.T) {
	f := newFlatFixture()
	now := time.Now()
	o1 := f.add(t, "9400000011", domain.RoleOwner, "B-1", now, "t1")
	o2 := f.add(t, "9400000012", domain.RoleOwner, "B-1", now, "t2")

	c, err := NewResolver(f.store).Controllers(f.ctx, f.society, "B-1")
	require.NoError(t, err)
	assert.True(t, c.Contains(o1.ID))
	assert.True(t, c.Contains(o2.ID))
	assert.ElementsMatch(t, []string{"t1", "t2"}, c.Tokens())
}

func TestControllersEmptyFlat(t *testing.T) {
	f := newFlatFixture()
	c, err := NewResolver(f.store).Controllers(f.ctx, f.society, "Z-9")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestVisibilityBoundary(t *testing.T) {
	f := newFlatFixture()
	ownerSince := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tenantStart := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	owner := f.add(t, "9400000021", domain.RoleOwner, "C-3", ownerSince)
	tenant := f.add(t, "9400000022", domain.RoleTenant, "C-3", tenantStart)
	r := NewResolver(f.store)

	tenantView, err := r.Visibility(f.ctx, tenant.Principal())
	require.NoError(t, err)
	ownerView, err := r.Visibility(f.ctx, owner.Principal())
	require.NoError(t, err)

	tests := []struct {
		name       string
		createdAt  time.Time
		tenantSees bool
		ownerSees  bool
	}{
		{"one nanosecond before activation", tenantStart.Add(-time.Nanosecond), false, true},
		{"exactly at activation", tenantStart, true, false},
		{"one nanosecond after activation", tenantStart.Add(time.Nanosecond), true, false},
		{"long before", ownerSince, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tenantSees, tenantView.Allows(tt.createdAt), "tenant")
			assert.Equal(t, tt.ownerSees, ownerView.Allows(tt.createdAt), "owner")
		})
	}
}

func TestVisibilityAfterTenantMovesOut(t *testing.T) {
	f := newFlatFixture()
	tenantStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	moveOut := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	owner := f.add(t, "9400000031", domain.RoleOwner, "D-4", tenantStart.Add(-90*24*time.Hour))
	tenant := f.add(t, "9400000032", domain.RoleTenant, "D-4", tenantStart)
	f.deactivate(t, tenant, moveOut)
	r := NewResolver(f.store)

	view, err := r.Visibility(f.ctx, owner.Principal())
	require.NoError(t, err)
	assert.Equal(t, KindOwner, view.Kind)
	assert.True(t, view.Allows(tenantStart.Add(-time.Hour)), "before the tenancy")
	assert.False(t, view.Allows(tenantStart.Add(time.Hour)), "during the tenancy")
	assert.False(t, view.Allows(moveOut.Add(-time.Nanosecond)), "last instant of the tenancy")
	assert.True(t, view.Allows(moveOut), "after handover")

	_, err = r.Visibility(f.ctx, tenant.Principal())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "departed tenant has no view")
}

func TestBlockedTenantHandsViewBackToOwner(t *testing.T) {
	f := newFlatFixture()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	owner := f.add(t, "9400000051", domain.RoleOwner, "F-6", base)
	tenant := f.add(t, "9400000052", domain.RoleTenant, "F-6", base.Add(time.Hour))
	_, err := f.store.Execute(f.ctx, tenant.ID, func(*models.Account) error { return nil }, func(a *models.Account) {
		a.Status = models.StatusBlocked
	})
	require.NoError(t, err)
	r := NewResolver(f.store)

	ctl, err := r.Controllers(f.ctx, f.society, "F-6")
	require.NoError(t, err)
	require.Equal(t, KindOwner, ctl.Kind)
	require.True(t, ctl.Contains(owner.ID))

	view, err := r.Visibility(f.ctx, owner.Principal())
	require.NoError(t, err)
	assert.True(t, view.Allows(base.Add(2*time.Hour)), "owner controlling the flat reads its log")

	_, err = r.Visibility(f.ctx, tenant.Principal())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "blocked tenant has no view")
}

func TestDeactivatedBlockedTenantKeepsWindow(t *testing.T) {
	f := newFlatFixture()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(48 * time.Hour)
	owner := f.add(t, "9400000061", domain.RoleOwner, "F-7", base)
	tenant := f.add(t, "9400000062", domain.RoleTenant, "F-7", base.Add(time.Hour))
	_, err := f.store.Execute(f.ctx, tenant.ID, func(*models.Account) error { return nil }, func(a *models.Account) {
		a.Status = models.StatusBlocked
		a.DeactivatedAt = &end
	})
	require.NoError(t, err)

	view, err := NewResolver(f.store).Visibility(f.ctx, owner.Principal())
	require.NoError(t, err)
	assert.False(t, view.Allows(base.Add(2*time.Hour)), "inside the ended tenancy")
	assert.True(t, view.Allows(end), "after the tenancy ended")
}

func TestVisibilityRejectsNonOccupants(t *testing.T) {
	f := newFlatFixture()
	f.add(t, "9400000041", domain.RoleOwner, "E-5", time.Now())
	r := NewResolver(f.store)

	outsider := domain.Principal{AccountID: domain.NewAccountID(), SocietyID: f.society,
		Roles: domain.NewRoleSet(domain.RoleOwner), FlatNo: "E-5"}
	_, err := r.Visibility(f.ctx, outsider)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	guard := domain.Principal{AccountID: domain.NewAccountID(), SocietyID: f.society,
		Roles: domain.NewRoleSet(domain.RoleGuard)}
	_, err = r.Visibility(f.ctx, guard)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

type failingDirectory struct{}

func (failingDirectory) FindActiveAccounts(context.Context, domain.SocietyID, string, domain.Role) ([]*models.Account, error) {
	return nil, errors.New("directory down")
}

func (failingDirectory) ListTenancies(context.Context, domain.SocietyID, string) ([]models.Tenancy, error) {
	return nil, errors.New("directory down")
}

func TestResolverPropagatesDirectoryErrors(t *testing.T) {
	r := NewResolver(failingDirectory{})
	_, err := r.Controllers(context.Background(), domain.NewSocietyID(), "A-1")
	assert.Error(t, err)
}
