package model

import (
	"role-keeper/utils/clock"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Bot provides an interface for bot functionality to avoid circular dependencies.
type Bot interface {
	GetConfig() *Config
	GetSession() *discordgo.Session
	GetLogger() *zap.Logger
	GetClock() clock.Clock
}
