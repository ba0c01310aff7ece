package handlers

import (
	"role-keeper/bot"
	"role-keeper/handlers/temprole"

	"github.com/bwmarrin/discordgo"
)

func handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, temp *temprole.Handler) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
			h(s, i)
		}
	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		switch {
		case temprole.IsComponent(customID):
			temp.HandleComponent(s, i)
		case temprole.IsListPage(customID):
			temp.HandleListPage(s, i)
		}
	}
}
