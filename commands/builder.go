package commands

import (
	"role-keeper/commands/defs"

	"github.com/bwmarrin/discordgo"
)

// GenerateCommands returns every slash command the bot registers.
func GenerateCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		defs.TempRole,
		defs.TempRoleCancel,
		defs.TempRoleList,
		defs.SystemInfo,
	}
}
