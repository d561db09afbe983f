package model

// Identity is what the identity provider knows about the current caller. The
// feed treats it as opaque and read-only.
type Identity struct {
	UserId      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl"`
	Role        Role   `json:"role"`
}

// IsPrivileged reports whether the caller may pin posts and delete posts of
// other authors.
func (i *Identity) IsPrivileged() bool {
	return i != nil && (i.Role == RoleAdmin || i.Role == RoleModerator)
}

type Role string

const (
	RoleMember    Role = "MEMBER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

var AllRole = []Role{
	RoleMember,
	RoleModerator,
	RoleAdmin,
}

func (e Role) IsValid() bool {
	switch e {
	case RoleMember, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

func (e Role) String() string {
	return string(e)
}

// ParseRole maps provider supplied role names, unknown or empty names fall
// back to RoleMember.
func ParseRole(s string) Role {
	r := Role(s)
	if r.IsValid() {
		return r
	}
	switch s {
	case "admin":
		return RoleAdmin
	case "moderator":
		return RoleModerator
	}
	return RoleMember
}
