package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestUserDerivedStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		user     accounts.User
		expected accounts.UserStatus
	}{
		{
			name:     "New account is pending",
			user:     accounts.User{},
			expected: accounts.UserStatusPending,
		},
		{
			name:     "Activated account is active",
			user:     accounts.User{Activated: true},
			expected: accounts.UserStatusActive,
		},
		{
			name:     "Indefinite suspension",
			user:     accounts.User{Activated: true, SuspendedAt: &past},
			expected: accounts.UserStatusSuspended,
		},
		{
			name:     "Suspension inside its window",
			user:     accounts.User{Activated: true, SuspendedAt: &past, SuspendedUntil: &future},
			expected: accounts.UserStatusSuspended,
		},
		{
			name:     "Suspension past its window reads as active",
			user:     accounts.User{Activated: true, SuspendedAt: &past, SuspendedUntil: &past},
			expected: accounts.UserStatusActive,
		},
		{
			name:     "Ban dominates suspension",
			user:     accounts.User{Activated: true, SuspendedAt: &past, BannedAt: &past},
			expected: accounts.UserStatusBanned,
		},
		{
			name:     "Ban dominates pending",
			user:     accounts.User{BannedAt: &past},
			expected: accounts.UserStatusBanned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.user.DerivedStatusAt(now))
		})
	}
}

func TestUserIsSuspendedAt(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	until := now.Add(time.Minute)

	user := accounts.User{SuspendedAt: &start, SuspendedUntil: &until}

	assert.True(t, user.IsSuspendedAt(now))
	assert.False(t, user.IsSuspendedAt(until))
	assert.False(t, user.IsSuspendedAt(until.Add(time.Second)))
}

func TestUserAddMetadata(t *testing.T) {
	user := &accounts.User{}
	user.AddMetadata("source", "import").AddMetadata("batch", 7)

	assert.Equal(t, "import", user.Metadata["source"])
	assert.Equal(t, 7, user.Metadata["batch"])
}

func TestGroupAllows(t *testing.T) {
	group := &accounts.Group{
		Name:        "editors",
		Permissions: map[string]bool{"posts.edit": true, "posts.delete": false},
	}

	assert.True(t, group.Allows("posts.edit"))
	assert.False(t, group.Allows("posts.delete"))
	assert.False(t, group.Allows("unknown"))

	var nilGroup *accounts.Group
	assert.False(t, nilGroup.Allows("posts.edit"))
}
