package temprole

import (
	"role-keeper/utils"

	"github.com/bwmarrin/discordgo"
)

// GrantContext is everything needed to decide whether the invoker may hand
// out or take back a role.
type GrantContext struct {
	GuildID        string
	Invoker        utils.PermissionInput
	InvokerTop     int
	BotPermissions int64
	BotTop         int
	Role           *discordgo.Role
}

// checkGrant returns the message shown to the invoker when the action is not
// allowed, or "" when it is.
func checkGrant(c GrantContext) string {
	if c.BotPermissions&(discordgo.PermissionManageRoles|discordgo.PermissionAdministrator) == 0 {
		return "I don't have permission to manage roles!"
	}
	if c.Role == nil {
		return "That role no longer exists."
	}
	if c.Role.ID == c.GuildID {
		return "The @everyone role can't be assigned."
	}
	if c.Role.Managed {
		return "This role is managed by an integration and can't be assigned."
	}
	if c.Role.Position >= c.BotTop {
		return "I can't assign this role because it's higher than or equal to my highest role!"
	}

	level := utils.CheckPermission(c.Invoker)
	if !utils.CanManageTempRoles(level) {
		return "You don't have permission to manage roles!"
	}
	if level != utils.OwnerPermission && level != utils.DeveloperPermission && c.Role.Position >= c.InvokerTop {
		return "You can't assign this role because it's higher than or equal to your highest role!"
	}
	return ""
}
