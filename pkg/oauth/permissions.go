package oauth

// Permission is one organization-scoped capability granted by the backend.
type Permission string

// The closed set of permissions the client understands. Permission strings
// from the backend outside this set are dropped during parsing so newer
// backends cannot smuggle unknown capabilities into older clients.
const (
	PermissionMembersRead   Permission = "members:read"
	PermissionMembersWrite  Permission = "members:write"
	PermissionBillingRead   Permission = "billing:read"
	PermissionBillingWrite  Permission = "billing:write"
	PermissionSettingsRead  Permission = "settings:read"
	PermissionSettingsWrite Permission = "settings:write"
)

var knownPermissions = map[Permission]bool{
	PermissionMembersRead:   true,
	PermissionMembersWrite:  true,
	PermissionBillingRead:   true,
	PermissionBillingWrite:  true,
	PermissionSettingsRead:  true,
	PermissionSettingsWrite: true,
}

// Valid reports whether p is a permission this client understands.
func (p Permission) Valid() bool {
	return knownPermissions[p]
}

// ParsePermissions maps raw permission strings from the backend to known
// Permission values, silently dropping any it does not recognize.
func ParsePermissions(raw []string) []Permission {
	perms := make([]Permission, 0, len(raw))
	for _, r := range raw {
		if p := Permission(r); p.Valid() {
			perms = append(perms, p)
		}
	}
	return perms
}
