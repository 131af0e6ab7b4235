package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbroker/taskbroker/internal/model"
	"github.com/agentbroker/taskbroker/internal/store/storetest"
)

func TestMatchPermission(t *testing.T) {
	cases := []struct {
		granted, required string
		want               bool
	}{
		{"read:tasks", "read:tasks", true},
		{"read:tasks", "write:tasks", false},
		{"read:*", "read:tasks", true},
		{"read:*", "read:tasks:notes", true},
		{"*:*", "anything:goes", true},
		{"read:tasks", "read:tasks:notes", false},
		{"read:tasks:notes", "read:tasks", false},
	}
	for _, c := range cases {
		got := MatchPermission(c.granted, c.required)
		assert.Equalf(t, c.want, got, "MatchPermission(%q, %q)", c.granted, c.required)
	}
}

func TestResolveRejectsMalformedKey(t *testing.T) {
	g := New(storetest.New())
	_, err := g.Resolve(context.Background(), "no-separator")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindUnauthenticated))
}

func TestResolveRejectsUnknownPrefix(t *testing.T) {
	g := New(storetest.New())
	_, err := g.Resolve(context.Background(), "deadbeef.secretmaterial")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindUnauthenticated))
}

func TestResolveRejectsDisabledCredential(t *testing.T) {
	s := storetest.New()
	hash, err := HashKey("abc123.secretmaterial")
	require.NoError(t, err)
	_, err = s.CreateAPICredential(context.Background(), &model.APICredential{
		OrganizationID: 1, ProjectID: 1, KeyPrefix: "abc123", KeyHash: hash, Enabled: false,
	})
	require.NoError(t, err)

	g := New(s)
	_, err = g.Resolve(context.Background(), "abc123.secretmaterial")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindUnauthenticated))
}

func TestResolveRejectsWrongSecret(t *testing.T) {
	s := storetest.New()
	hash, err := HashKey("abc123.secretmaterial")
	require.NoError(t, err)
	_, err = s.CreateAPICredential(context.Background(), &model.APICredential{
		OrganizationID: 1, ProjectID: 1, KeyPrefix: "abc123", KeyHash: hash, Enabled: true,
	})
	require.NoError(t, err)

	g := New(s)
	_, err = g.Resolve(context.Background(), "abc123.wrongsecret")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrorKindUnauthenticated))
}

func TestResolveSucceedsAndTouchesCredential(t *testing.T) {
	s := storetest.New()
	hash, err := HashKey("abc123.secretmaterial")
	require.NoError(t, err)
	cred, err := s.CreateAPICredential(context.Background(), &model.APICredential{
		OrganizationID: 7, ProjectID: 3, KeyPrefix: "abc123", KeyHash: hash, Enabled: true,
	})
	require.NoError(t, err)
	assert.Nil(t, cred.LastUsedAt)

	g := New(s)
	scope, err := g.Resolve(context.Background(), "abc123.secretmaterial")
	require.NoError(t, err)
	assert.Equal(t, int64(7), scope.OrganizationID)
	assert.Equal(t, int64(3), scope.ProjectID)
	assert.Equal(t, cred.ID, scope.CredentialID)
}

func TestHasPermissionMatchesAcrossRoles(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()
	role, err := s.CreateRole(ctx, &model.Role{OrganizationID: 1, Name: "agent", Permissions: []string{"lease:*"}})
	require.NoError(t, err)
	_, err = s.CreateMembership(ctx, &model.Membership{OrganizationID: 1, UserIdentity: "agent-1", RoleIDs: []int64{role.ID}})
	require.NoError(t, err)

	g := New(s)
	scope := &Scope{OrganizationID: 1}

	ok, err := g.HasPermission(ctx, scope, "agent-1", "lease:reserve")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.HasPermission(ctx, scope, "agent-1", "project:create")
	require.NoError(t, err)
	assert.False(t, ok)
}
