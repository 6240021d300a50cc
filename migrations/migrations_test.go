package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionsAreOrdered(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	require.Equal(t, "0001_access", versions[0])
}

func TestSchemaCoversAccessTables(t *testing.T) {
	body, err := files.ReadFile("0001_access.up.sql")
	require.NoError(t, err)
	for _, table := range []string{
		"users", "auth_sessions", "user_profiles", "locations", "roles", "permissions",
		"role_permissions", "user_roles_locations", "user_permissions", "invitations",
		"invitation_roles_locations", "invitation_permissions", "provisioning_gaps",
		"audit_logs", "idempotency_keys",
	} {
		require.True(t, strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" ("), table)
	}
}
