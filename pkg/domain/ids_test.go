package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatehouse/pkg/domain-errors"
)

func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseVisitorID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSocietyID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		u := uuid.New()
		parsed, err := ParseVisitorID(u.String())
		require.NoError(t, err)
		assert.Equal(t, VisitorID(u), parsed)
	})
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE accounts;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIDsEncodeAsPlainStrings(t *testing.T) {
	v := NewVisitorID()
	b, err := json.Marshal(struct {
		ID VisitorID `json:"id"`
	}{ID: v})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+v.String()+`"}`, string(b))

	var decoded struct {
		ID VisitorID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, v, decoded.ID)
}

func TestRoleSet(t *testing.T) {
	rs := NewRoleSet(RoleOwner, RoleTenant, RoleOwner)
	assert.Len(t, rs, 2)
	assert.True(t, rs.HasAll(RoleOwner, RoleTenant))
	assert.False(t, rs.HasAll(RoleOwner, RoleGuard))
	assert.True(t, rs.HasAny(RoleGuard, RoleTenant))
	assert.Equal(t, []string{"OWNER", "TENANT"}, rs.Strings())

	_, err := ParseRoleSet([]string{"owner", "janitor"})
	require.Error(t, err)

	var decoded RoleSet
	require.NoError(t, json.Unmarshal([]byte(`["guard"]`), &decoded))
	assert.True(t, decoded.Has(RoleGuard))
}

func TestNormalizeFlat(t *testing.T) {
	assert.Equal(t, "A-101", NormalizeFlat("  a-101 "))
	assert.Equal(t, "", NormalizeFlat("   "))
}
