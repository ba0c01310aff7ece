package utils

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// logChunkSize keeps each audit embed well under Discord's description limit.
const logChunkSize = 1900

// NewLogger builds the process logger. level is a zap level name such as
// "debug" or "info".
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ChannelMessenger is the part of *discordgo.Session the audit log needs.
type ChannelMessenger interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func getColor(level LogLevel) int {
	switch level {
	case Info:
		return 3066993 // Green
	case Warn:
		return 15105570 // Orange
	case Error:
		return 15158332 // Red
	default:
		return 3447003 // Blue
	}
}

func sendLog(s ChannelMessenger, channelID string, level LogLevel, module, operation, details string) error {
	if channelID == "" {
		return nil
	}

	chunks := chunkText(details, logChunkSize)
	for n, chunk := range chunks {
		title := string(level) + " Log"
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s (%d/%d)", title, n+1, len(chunks))
		}
		embed := &discordgo.MessageEmbed{
			Title:       title,
			Color:       getColor(level),
			Description: chunk,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Module", Value: module, Inline: true},
				{Name: "Operation", Value: operation, Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
			return errors.Wrapf(err, "failed to send log to channel %s", channelID)
		}
	}
	return nil
}

// chunkText splits s into pieces of at most size runes. It always returns
// at least one piece.
func chunkText(s string, size int) []string {
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	var chunks []string
	runes := []rune(s)
	for len(runes) > size {
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func LogInfo(s ChannelMessenger, channelID, module, operation, details string) error {
	return sendLog(s, channelID, Info, module, operation, details)
}

func LogWarn(s ChannelMessenger, channelID, module, operation, details string) error {
	return sendLog(s, channelID, Warn, module, operation, details)
}

func LogError(s ChannelMessenger, channelID, module, operation, details string) error {
	return sendLog(s, channelID, Error, module, operation, details)
}
