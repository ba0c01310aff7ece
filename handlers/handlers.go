package handlers

import (
	"role-keeper/bot"
	"role-keeper/handlers/temprole"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func Register(b *bot.Bot) {
	temp := temprole.NewHandler(b, b.Grants, b.Store)
	b.CommandHandlers = commandHandlers(b, temp)
	addHandlers(b, temp)
}

func addHandlers(b *bot.Bot, temp *temprole.Handler) {
	b.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.GetLogger().Info("logged in", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})
	b.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		handleInteractionCreate(s, i, b, temp)
	})
	b.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		HandleGuildMemberAdd(s, m, b)
	})
}
