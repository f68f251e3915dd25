package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAndValidate(t *testing.T) {
	m := NewManager("test-secret")

	resp, err := m.Login("admin", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "admin", resp.User.Username)

	claims, err := m.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-admin", claims.UserID)
	assert.Equal(t, "moat", claims.Issuer)
	assert.Contains(t, claims.Permissions, "*:*")
}

func TestLoginRejectsBadPassword(t *testing.T) {
	m := NewManager("test-secret")

	_, err := m.Login("admin", "wrong")
	assert.Error(t, err)

	_, err = m.Login("nobody", "admin")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewManager("secret-a")
	verifier := NewManager("secret-b")

	resp, err := issuer.Login("admin", "admin")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(resp.Token)
	assert.Error(t, err)
}

func TestCreateUserAndRoles(t *testing.T) {
	m := NewManager("test-secret")

	user, err := m.CreateUser("ci-bot", "ci@example.com", "service", "hunter2hunter2")
	require.NoError(t, err)

	resp, err := m.Login("ci-bot", "hunter2hunter2")
	require.NoError(t, err)

	claims, err := m.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, m.HasPermission(claims, "patterns:write"))
	assert.True(t, m.HasPermission(claims, "safety:check"))
	assert.True(t, m.HasPermission(claims, "moat:read"))
	assert.False(t, m.HasPermission(claims, "moat:write"))

	_, err = m.CreateUser("ci-bot", "dup@example.com", "service", "x")
	assert.Error(t, err)

	_, err = m.CreateUser("other", "o@example.com", "no-such-role", "x")
	assert.Error(t, err)
}

func TestHasPermissionWildcards(t *testing.T) {
	m := NewManager("test-secret")

	claims := &Claims{Permissions: []string{"patterns:*"}}
	assert.True(t, m.HasPermission(claims, "patterns:read"))
	assert.True(t, m.HasPermission(claims, "patterns:write"))
	assert.False(t, m.HasPermission(claims, "safety:check"))
}

func TestAPIKeyLifecycle(t *testing.T) {
	m := NewManager("test-secret")

	created, err := m.CreateAPIKey("user-admin", CreateAPIKeyRequest{
		Name:        "ci key",
		Permissions: []string{"safety:check"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Key)

	userID, perms, err := m.ValidateAPIKey(created.Key)
	require.NoError(t, err)
	assert.Equal(t, "user-admin", userID)
	assert.Equal(t, []string{"safety:check"}, perms)

	keys := m.ListAPIKeys("user-admin")
	require.Len(t, keys, 1)
	assert.Equal(t, "ci key", keys[0].Name)

	require.NoError(t, m.RevokeAPIKey(created.ID, "user-admin"))
	_, _, err = m.ValidateAPIKey(created.Key)
	assert.Error(t, err)
	assert.Empty(t, m.ListAPIKeys("user-admin"))
}

func TestChangePassword(t *testing.T) {
	m := NewManager("test-secret")

	require.NoError(t, m.ChangePassword("user-admin", "admin", "new-password"))

	_, err := m.Login("admin", "admin")
	assert.Error(t, err)

	_, err = m.Login("admin", "new-password")
	assert.NoError(t, err)
}
