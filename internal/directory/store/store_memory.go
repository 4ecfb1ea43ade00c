package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gatehouse/internal/directory/models"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded account store for development and tests.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[domain.AccountID]*models.Account
	byMobile map[string]domain.AccountID
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[domain.AccountID]*models.Account),
		byMobile: make(map[string]domain.AccountID),
	}
}

func (s *InMemory) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byMobile[account.Mobile]; taken {
		return fmt.Errorf("mobile already registered: %w", sentinel.ErrConflict)
	}
	stored := clone(account)
	s.accounts[account.ID] = stored
	s.byMobile[account.Mobile] = account.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(a), nil
}

func (s *InMemory) FindByMobile(_ context.Context, mobile string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byMobile[mobile]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.accounts[id]), nil
}

// FindActiveAccounts returns ACTIVE accounts of the flat holding role,
// oldest first.
func (s *InMemory) FindActiveAccounts(_ context.Context, society domain.SocietyID, flatNo string, role domain.Role) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.SocietyID == society && a.FlatNo == flatNo && a.IsActive() && a.Roles.Has(role) {
			out = append(out, clone(a))
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListTenancies returns every tenancy the flat has had, including ended ones.
func (s *InMemory) ListTenancies(_ context.Context, society domain.SocietyID, flatNo string) ([]models.Tenancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tenants []*models.Account
	for _, a := range s.accounts {
		if a.SocietyID == society && a.FlatNo == flatNo {
			tenants = append(tenants, a)
		}
	}
	return tenanciesOf(tenants), nil
}

func tenanciesOf(accounts []*models.Account) []models.Tenancy {
	sortByCreated(accounts)
	out := make([]models.Tenancy, 0, len(accounts))
	for _, a := range accounts {
		if t, ok := a.Tenancy(); ok {
			out = append(out, t)
		}
	}
	return out
}

// ListOccupants returns ACTIVE owners and tenants of the society.
func (s *InMemory) ListOccupants(_ context.Context, society domain.SocietyID) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Account
	for _, a := range s.accounts {
		if a.SocietyID == society && a.IsActive() && a.FlatNo != "" &&
			a.Roles.HasAny(domain.RoleOwner, domain.RoleTenant) {
			out = append(out, clone(a))
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *InMemory) RegisterDeviceToken(_ context.Context, id domain.AccountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.AddDeviceToken(token)
	return nil
}

// Execute validates and mutates one account under the store lock.
func (s *InMemory) Execute(_ context.Context, id domain.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(a)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.accounts[id] = working
	return clone(working), nil
}

func clone(a *models.Account) *models.Account {
	c := *a
	c.Roles = make(domain.RoleSet, len(a.Roles))
	for r := range a.Roles {
		c.Roles[r] = struct{}{}
	}
	c.DeviceTokens = append([]string(nil), a.DeviceTokens...)
	if a.DeactivatedAt != nil {
		t := *a.DeactivatedAt
		c.DeactivatedAt = &t
	}
	return &c
}

func sortByCreated(accounts []*models.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
}
