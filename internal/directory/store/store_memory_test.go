package store

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/suite"

	"gatehouse/internal/directory/models"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

type DirectoryStoreSuite struct {
	suite.Suite
	store   *InMemory
	ctx     context.Context
	society domain.SocietyID
	base    time.Time
}

func TestDirectoryStoreSuite(t *testing.T) {
	suite.Run(t, new(DirectoryStoreSuite))
}

func (s *DirectoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.society = domain.NewSocietyID()
	s.base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *DirectoryStoreSuite) account(mobile string, role domain.Role, flat string, at time.Time) *models.Account {
	a, err := models.NewAccount(domain.NewAccountID(), s.society, gofakeit.Name(), mobile,
		domain.NewRoleSet(role), flat, at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, a))
	return a
}

func (s *DirectoryStoreSuite) TestCreateAndLookups() {
	a := s.account("9000000001", domain.RoleOwner, "A-101", s.base)

	s.Run("finds by id", func() {
		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal("A-101", found.FlatNo)
	})

	s.Run("finds by mobile", func() {
		found, err := s.store.FindByMobile(s.ctx, "9000000001")
		s.Require().NoError(err)
		s.Equal(a.ID, found.ID)
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(s.ctx, domain.NewAccountID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate mobile conflicts", func() {
		dup, err := models.NewAccount(domain.NewAccountID(), s.society, "Dup", "9000000001",
			domain.NewRoleSet(domain.RoleGuard), "", s.base)
		s.Require().NoError(err)
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("returned copies are detached", func() {
		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		found.FlatNo = "Z-9"
		again, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal("A-101", again.FlatNo)
	})
}

func (s *DirectoryStoreSuite) TestFindActiveAccounts() {
	owner := s.account("9000000010", domain.RoleOwner, "B-2", s.base)
	tenant := s.account("9000000011", domain.RoleTenant, "B-2", s.base.Add(time.Hour))
	s.account("9000000012", domain.RoleTenant, "B-3", s.base)

	tenants, err := s.store.FindActiveAccounts(s.ctx, s.society, "B-2", domain.RoleTenant)
	s.Require().NoError(err)
	s.Require().Len(tenants, 1)
	s.Equal(tenant.ID, tenants[0].ID)

	owners, err := s.store.FindActiveAccounts(s.ctx, s.society, "B-2", domain.RoleOwner)
	s.Require().NoError(err)
	s.Require().Len(owners, 1)
	s.Equal(owner.ID, owners[0].ID)

	_, err = s.store.Execute(s.ctx, tenant.ID, (*models.Account).CanDeactivate, func(a *models.Account) {
		a.ApplyDeactivation(s.base.Add(2 * time.Hour))
	})
	s.Require().NoError(err)

	tenants, err = s.store.FindActiveAccounts(s.ctx, s.society, "B-2", domain.RoleTenant)
	s.Require().NoError(err)
	s.Empty(tenants)

	other, err := s.store.FindActiveAccounts(s.ctx, domain.NewSocietyID(), "B-2", domain.RoleOwner)
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *DirectoryStoreSuite) TestListTenancies() {
	first := s.account("9000000020", domain.RoleTenant, "C-1", s.base)
	end := s.base.Add(24 * time.Hour)
	_, err := s.store.Execute(s.ctx, first.ID, (*models.Account).CanDeactivate, func(a *models.Account) {
		a.ApplyDeactivation(end)
	})
	s.Require().NoError(err)
	second := s.account("9000000021", domain.RoleTenant, "C-1", s.base.Add(48*time.Hour))

	pending := s.account("9000000022", domain.RoleTenant, "C-1", s.base.Add(72*time.Hour))
	_, err = s.store.Execute(s.ctx, pending.ID, func(*models.Account) error { return nil }, func(a *models.Account) {
		a.Status = models.StatusPendingVerification
	})
	s.Require().NoError(err)

	blocked := s.account("9000000023", domain.RoleTenant, "C-1", s.base.Add(96*time.Hour))
	_, err = s.store.Execute(s.ctx, blocked.ID, func(*models.Account) error { return nil }, func(a *models.Account) {
		a.Status = models.StatusBlocked
	})
	s.Require().NoError(err)

	tenancies, err := s.store.ListTenancies(s.ctx, s.society, "C-1")
	s.Require().NoError(err)
	s.Require().Len(tenancies, 2)
	s.Equal(first.ID, tenancies[0].AccountID)
	s.Require().NotNil(tenancies[0].End)
	s.True(tenancies[0].End.Equal(end))
	s.Equal(second.ID, tenancies[1].AccountID)
	s.Nil(tenancies[1].End)
}

func (s *DirectoryStoreSuite) TestListOccupants() {
	s.account("9000000030", domain.RoleOwner, "D-1", s.base)
	s.account("9000000031", domain.RoleTenant, "D-2", s.base)
	s.account("9000000032", domain.RoleGuard, "", s.base)

	occupants, err := s.store.ListOccupants(s.ctx, s.society)
	s.Require().NoError(err)
	s.Len(occupants, 2)
}

func (s *DirectoryStoreSuite) TestRegisterDeviceToken() {
	a := s.account("9000000040", domain.RoleOwner, "E-1", s.base)

	s.Require().NoError(s.store.RegisterDeviceToken(s.ctx, a.ID, "tok-1"))
	s.Require().NoError(s.store.RegisterDeviceToken(s.ctx, a.ID, "tok-1"))

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]string{"tok-1"}, found.DeviceTokens)

	s.ErrorIs(s.store.RegisterDeviceToken(s.ctx, domain.NewAccountID(), "tok"), sentinel.ErrNotFound)
}

func (s *DirectoryStoreSuite) TestExecuteLeavesStateOnValidationError() {
	a := s.account("9000000050", domain.RoleTenant, "F-1", s.base)
	_, err := s.store.Execute(s.ctx, a.ID, (*models.Account).CanDeactivate, func(a *models.Account) {
		a.ApplyDeactivation(s.base)
	})
	s.Require().NoError(err)

	_, err = s.store.Execute(s.ctx, a.ID, (*models.Account).CanDeactivate, func(a *models.Account) {
		a.ApplyDeactivation(s.base.Add(time.Hour))
	})
	s.Require().Error(err)

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.True(found.DeactivatedAt.Equal(s.base))
}
