package utils

import "github.com/bwmarrin/discordgo"

// Permission levels
const (
	DeveloperPermission = "developer"
	OwnerPermission     = "owner"
	AdminPermission     = "admin"
	ModeratorPermission = "moderator"
	GuestPermission     = "guest"
)

// PermissionInput describes the member invoking a command.
type PermissionInput struct {
	UserID       string
	RoleIDs      []string
	Permissions  int64
	GuildOwnerID string
	AdminRoleID  string
	DeveloperIDs []string
}

// contains checks if a slice of strings contains an element.
func contains(slice []string, item string) bool {
	for _, a := range slice {
		if a == item {
			return true
		}
	}
	return false
}

// CheckPermission returns the highest permission level of the invoker.
func CheckPermission(in PermissionInput) string {
	switch {
	case contains(in.DeveloperIDs, in.UserID):
		return DeveloperPermission
	case in.GuildOwnerID != "" && in.UserID == in.GuildOwnerID:
		return OwnerPermission
	case in.Permissions&discordgo.PermissionAdministrator != 0:
		return AdminPermission
	case in.AdminRoleID != "" && contains(in.RoleIDs, in.AdminRoleID):
		return AdminPermission
	case in.Permissions&discordgo.PermissionManageRoles != 0:
		return ModeratorPermission
	}
	return GuestPermission
}

// CanManageTempRoles reports whether a permission level may grant or
// revoke temporary roles.
func CanManageTempRoles(level string) bool {
	return level != GuestPermission
}

// HighestRolePosition returns the position of the member's top role, or 0
// when the member only has @everyone.
func HighestRolePosition(memberRoleIDs []string, guildRoles []*discordgo.Role) int {
	top := 0
	for _, role := range guildRoles {
		if contains(memberRoleIDs, role.ID) && role.Position > top {
			top = role.Position
		}
	}
	return top
}

// FindRole looks up a role by id.
func FindRole(guildRoles []*discordgo.Role, roleID string) *discordgo.Role {
	for _, role := range guildRoles {
		if role.ID == roleID {
			return role
		}
	}
	return nil
}
