package handlers

import (
	"context"
	"fmt"
	"role-keeper/bot"
	"role-keeper/utils"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// HandleGuildMemberAdd gives a returning member back the temporary roles
// that are still running. Their deadlines are not extended.
func HandleGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd, b *bot.Bot) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	logger := b.GetLogger().With(zap.String("guild", m.GuildID), zap.String("user", m.User.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	restored, err := b.Grants.Rejoin(ctx, m.User.ID, m.GuildID, b.GetClock().Now())
	if err != nil {
		logger.Warn("failed to restore temporary roles on rejoin", zap.Error(err))
		if logErr := utils.LogWarn(s, b.GetConfig().LogChannelID, "TempRole", "Rejoin", err.Error()); logErr != nil {
			logger.Warn("failed to write audit log", zap.Error(logErr))
		}
	}
	if restored > 0 {
		logger.Info("restored temporary roles on rejoin", zap.Int("count", restored))
		msg := fmt.Sprintf("Restored %d temporary role(s) to <@%s> after rejoining.", restored, m.User.ID)
		if logErr := utils.LogInfo(s, b.GetConfig().LogChannelID, "TempRole", "Rejoin", msg); logErr != nil {
			logger.Warn("failed to write audit log", zap.Error(logErr))
		}
	}
}
