package handlers

import (
	"role-keeper/bot"
	"role-keeper/commands/defs"
	"role-keeper/handlers/temprole"

	"github.com/bwmarrin/discordgo"
)

func commandHandlers(b *bot.Bot, temp *temprole.Handler) map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate){
		defs.TempRole.Name:       temp.HandleTempCommand,
		defs.TempRoleCancel.Name: temp.HandleCancelCommand,
		defs.TempRoleList.Name:   temp.HandleListCommand,
		defs.SystemInfo.Name: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			SystemInfoHandler(s, i, b)
		},
	}
}
