package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanAccessStore(t *testing.T) {
	manager := Identity{Subject: "u-1", Roles: []string{"Manager"}, StoreIDs: []int64{3, 9}}
	require.True(t, manager.CanAccessStore(3))
	require.True(t, manager.CanAccessStore(9))
	require.False(t, manager.CanAccessStore(4))

	admin := Identity{Subject: "u-2", Roles: []string{RoleAdmin}}
	require.True(t, admin.CanAccessStore(4), "admin is assigned to every store")

	require.False(t, Identity{}.CanAccessStore(3))
}

func TestHasRoleAndPermission(t *testing.T) {
	id := Identity{Subject: "u-1", Roles: []string{"Manager"}, Permissions: []string{"sales.read"}}
	require.True(t, id.HasRole("Manager"))
	require.False(t, id.HasRole("manager"), "role names are case sensitive")
	require.True(t, id.HasPermission("sales.read"))
	require.False(t, id.HasPermission("sales.write"))
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{Subject: "u-1"})
	require.Equal(t, "u-1", IdentityFromContext(ctx).Subject)

	anon := IdentityFromContext(context.Background())
	require.True(t, anon.IsAnonymous())
}
