package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
)

func TestNewAccount(t *testing.T) {
	now := time.Now()

	t.Run("normalizes flat number", func(t *testing.T) {
		a, err := NewAccount(domain.NewAccountID(), domain.NewSocietyID(), " Asha ", "9000000001",
			domain.NewRoleSet(domain.RoleOwner), " a-101 ", now)
		require.NoError(t, err)
		assert.Equal(t, "A-101", a.FlatNo)
		assert.Equal(t, "Asha", a.Name)
		assert.True(t, a.IsActive())
	})

	t.Run("occupant without flat is rejected", func(t *testing.T) {
		_, err := NewAccount(domain.NewAccountID(), domain.NewSocietyID(), "Ravi", "9000000002",
			domain.NewRoleSet(domain.RoleTenant), "", now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("guard needs no flat", func(t *testing.T) {
		_, err := NewAccount(domain.NewAccountID(), domain.NewSocietyID(), "Gate 1", "9000000003",
			domain.NewRoleSet(domain.RoleGuard), "", now)
		require.NoError(t, err)
	})
}

func TestDeactivationIsOneWay(t *testing.T) {
	now := time.Now()
	a, err := NewAccount(domain.NewAccountID(), domain.NewSocietyID(), "T", "9000000004",
		domain.NewRoleSet(domain.RoleTenant), "B-2", now)
	require.NoError(t, err)

	require.NoError(t, a.CanDeactivate())
	a.ApplyDeactivation(now.Add(time.Hour))
	assert.Equal(t, StatusInactive, a.Status)
	require.NotNil(t, a.DeactivatedAt)

	assert.Error(t, a.CanDeactivate())
}

func TestAddDeviceToken(t *testing.T) {
	a := &Account{}
	assert.True(t, a.AddDeviceToken("tok-1"))
	assert.False(t, a.AddDeviceToken("tok-1"))
	assert.False(t, a.AddDeviceToken("  "))
	assert.Equal(t, []string{"tok-1"}, a.DeviceTokens)
}

func TestTenancyWindow(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tenant := func(status AccountStatus, end *time.Time) *Account {
		a, err := NewAccount(domain.NewAccountID(), domain.NewSocietyID(), "Meera", "9000000070",
			domain.NewRoleSet(domain.RoleTenant), "C-3", start)
		require.NoError(t, err)
		a.Status = status
		a.DeactivatedAt = end
		return a
	}
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name    string
		account *Account
		ok      bool
		hasEnd  bool
	}{
		{"active tenant is open ended", tenant(StatusActive, nil), true, false},
		{"departed tenant is closed", tenant(StatusInactive, &end), true, true},
		{"blocked with an end is closed", tenant(StatusBlocked, &end), true, true},
		{"blocked in place has no window", tenant(StatusBlocked, nil), false, false},
		{"pending verification has no window", tenant(StatusPendingVerification, nil), false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, ok := tc.account.Tenancy()
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.True(t, w.Start.Equal(start))
				assert.Equal(t, tc.hasEnd, w.End != nil)
			}
		})
	}

	owner, err := NewAccount(domain.NewAccountID(), domain.NewSocietyID(), "Asha", "9000000071",
		domain.NewRoleSet(domain.RoleOwner), "C-3", start)
	require.NoError(t, err)
	_, ok := owner.Tenancy()
	assert.False(t, ok, "owners hold no tenancy")
}
