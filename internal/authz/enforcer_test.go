package authz

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/pkg/domain"
	"gatehouse/pkg/testutil"
)

func TestEnforcerCapabilities(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	tests := []struct {
		name    string
		roles   domain.RoleSet
		obj     string
		act     string
		allowed bool
	}{
		{"guard logs arrivals", domain.NewRoleSet(domain.RoleGuard), "visitor", "create", true},
		{"guard cannot decide", domain.NewRoleSet(domain.RoleGuard), "visitor", "decide", false},
		{"guard redeems passes", domain.NewRoleSet(domain.RoleGuard), "guestpass", "redeem", true},
		{"owner decides", domain.NewRoleSet(domain.RoleOwner), "visitor", "decide", true},
		{"tenant issues passes", domain.NewRoleSet(domain.RoleTenant), "guestpass", "issue", true},
		{"tenant cannot log arrivals", domain.NewRoleSet(domain.RoleTenant), "visitor", "create", false},
		{"super admin inherits admin", domain.NewRoleSet(domain.RoleSuperAdmin), "flat", "manage", true},
		{"owner cannot manage flats", domain.NewRoleSet(domain.RoleOwner), "flat", "manage", false},
		{"any role grants", domain.NewRoleSet(domain.RoleGuard, domain.RoleOwner), "visitor", "decide", true},
		{"no roles", domain.NewRoleSet(), "visitor", "list", false},
		{"guard moves visitors through the gate", domain.NewRoleSet(domain.RoleGuard), "visitor", "gate", true},
		{"guard reads the gate log", domain.NewRoleSet(domain.RoleGuard), "visitor", "log", true},
		{"admin reads the gate log", domain.NewRoleSet(domain.RoleAdmin), "visitor", "log", true},
		{"admin cannot move visitors", domain.NewRoleSet(domain.RoleAdmin), "visitor", "gate", false},
		{"super admin cannot move visitors", domain.NewRoleSet(domain.RoleSuperAdmin), "visitor", "gate", false},
		{"owner cannot read the gate log", domain.NewRoleSet(domain.RoleOwner), "visitor", "log", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := e.Allowed(tt.roles, tt.obj, tt.act)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, ok)
		})
	}
}

func TestRequire(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)
	mw := NewMiddleware(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := mw.Require("visitor", "create")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	society := domain.NewSocietyID()

	t.Run("allowed", func(t *testing.T) {
		req := testutil.WithPrincipal(httptest.NewRequest(http.MethodPost, "/visitors", nil),
			testutil.Principal(society, domain.RoleGuard, ""))
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("forbidden", func(t *testing.T) {
		req := testutil.WithPrincipal(httptest.NewRequest(http.MethodPost, "/visitors", nil),
			testutil.Principal(society, domain.RoleOwner, "A-1"))
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodPost, "/visitors", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})
}
