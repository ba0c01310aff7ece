package model

import "time"

// Config holds the bot's runtime settings, resolved by config.Load.
type Config struct {
	BotToken         string
	DBPath           string
	LogChannelID     string
	LogLevel         string
	AdminRoleID      string
	DeveloperUserIDs []string
	// GuildIDs limits command registration to these guilds. Empty registers
	// the commands globally.
	GuildIDs []string

	AutoRestore    bool
	ConfirmTimeout time.Duration
	SweepInterval  time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RecoveryRate   float64

	MetricsAddr string
}
