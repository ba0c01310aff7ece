package utils

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
)

// SendPrivateMessage sends a direct message to a user.
func SendPrivateMessage(s *discordgo.Session, userID, message string, options ...discordgo.RequestOption) error {
	channel, err := s.UserChannelCreate(userID, options...)
	if err != nil {
		return errors.Wrapf(err, "failed to open private channel with user %s", userID)
	}
	if _, err := s.ChannelMessageSend(channel.ID, message, options...); err != nil {
		return errors.Wrapf(err, "failed to send private message to user %s", userID)
	}
	return nil
}

// SendPrivateEmbedMessage sends a direct message with an embed to a user.
func SendPrivateEmbedMessage(s *discordgo.Session, userID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) error {
	channel, err := s.UserChannelCreate(userID, options...)
	if err != nil {
		return errors.Wrapf(err, "failed to open private channel with user %s", userID)
	}
	if _, err := s.ChannelMessageSendEmbed(channel.ID, embed, options...); err != nil {
		return errors.Wrapf(err, "failed to send private embed to user %s", userID)
	}
	return nil
}
