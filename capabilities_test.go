package accounts_test

import (
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesFromRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		expected []accounts.Capability
	}{
		{
			name:     "Admin role",
			role:     "admin",
			expected: []accounts.Capability{accounts.CapabilityView, accounts.CapabilityAdmin},
		},
		{
			name:     "Owner role",
			role:     "owner",
			expected: []accounts.Capability{accounts.CapabilityView, accounts.CapabilityAdmin},
		},
		{
			name:     "Member role",
			role:     "member",
			expected: []accounts.Capability{accounts.CapabilityView},
		},
		{
			name:     "Guest role",
			role:     "guest",
			expected: []accounts.Capability{accounts.CapabilityView},
		},
		{
			name:     "Unknown role",
			role:     "superuser",
			expected: nil,
		},
		{
			name:     "Empty role",
			role:     "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.CapabilitiesFromRole(tt.role))
		})
	}
}

func TestPrincipalCapabilities(t *testing.T) {
	admin := accounts.Principal{
		ID:           "admin-1",
		Capabilities: accounts.CapabilitiesFromRole("admin"),
	}
	member := accounts.Principal{
		ID:           "member-1",
		Capabilities: accounts.CapabilitiesFromRole("member"),
	}

	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.HasCapability(accounts.CapabilityView))

	assert.False(t, member.IsAdmin())
	assert.True(t, member.HasCapability(accounts.CapabilityView))
	assert.False(t, member.HasCapability("unknown"))
}

func TestPrincipalActorRef(t *testing.T) {
	principal := accounts.Principal{ID: "admin-1"}
	ref := principal.ActorRef()

	assert.Equal(t, "admin-1", ref.ID)
	assert.Equal(t, "principal", ref.Type)
}
