package shared

// RoleAdmin bypasses store scope checks entirely.
const RoleAdmin = "Admin"

// Identity describes the caller of the current request. A minimal Identity
// (subject, email, token role) is produced by token validation; the access
// guards enrich it with resolved roles, permissions and store scope before
// handing it to downstream handlers. It lives for one request only.
type Identity struct {
	Subject   string
	Email     string
	TokenRole string

	Roles       []string
	Permissions []string
	StoreIDs    []int64
}

// IsAnonymous reports whether no credential was presented.
func (id Identity) IsAnonymous() bool {
	return id.Subject == ""
}

// HasRole reports whether the identity holds the named role.
func (id Identity) HasRole(name string) bool {
	for _, r := range id.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether the identity holds the permission key.
func (id Identity) HasPermission(key string) bool {
	for _, p := range id.Permissions {
		if p == key {
			return true
		}
	}
	return false
}

// CanAccessStore reports whether the identity may act on the given store.
// Admins are treated as assigned to every store.
func (id Identity) CanAccessStore(storeID int64) bool {
	if id.HasRole(RoleAdmin) {
		return true
	}
	for _, sid := range id.StoreIDs {
		if sid == storeID {
			return true
		}
	}
	return false
}
