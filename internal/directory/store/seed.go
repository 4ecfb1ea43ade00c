package store

import (
	"context"
	"time"

	"gatehouse/internal/directory/models"
	"gatehouse/pkg/domain"
)

// DemoSociety is the society seeded for in-memory development runs.
var DemoSociety = domain.SocietyID{0x5e, 0xed}

// SeedDemo registers a guard, an owner of A-101 and a tenant of B-202 (whose
// owner also lives in the directory) so the gate flow can be exercised
// without a database.
func SeedDemo(ctx context.Context, s *InMemory, now time.Time) error {
	seed := []struct {
		name, mobile, flat string
		role               domain.Role
	}{
		{"Main Gate", "9000000000", "", domain.RoleGuard},
		{"Society Office", "9000000009", "", domain.RoleAdmin},
		{"Asha Rao", "9000000101", "A-101", domain.RoleOwner},
		{"Vikram Shah", "9000000201", "B-202", domain.RoleOwner},
		{"Neha Iyer", "9000000202", "B-202", domain.RoleTenant},
	}
	for _, p := range seed {
		a, err := models.NewAccount(domain.NewAccountID(), DemoSociety, p.name, p.mobile,
			domain.NewRoleSet(p.role), p.flat, now)
		if err != nil {
			return err
		}
		if err := s.Create(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
