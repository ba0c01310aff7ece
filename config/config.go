package config

import (
	"os"
	"role-keeper/model"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var defaults = map[string]interface{}{
	"DB_PATH":          "data/temp_roles.db",
	"LOG_LEVEL":        "info",
	"AUTO_RESTORE":     true,
	"CONFIRM_TIMEOUT":  5 * time.Minute,
	"SWEEP_INTERVAL":   5 * time.Minute,
	"RETRY_ATTEMPTS":   3,
	"RETRY_BASE_DELAY": 5 * time.Second,
	"RETRY_MAX_DELAY":  2 * time.Minute,
	"RECOVERY_RATE":    5.0,
}

// Load reads .env if present, then resolves every setting from the
// environment, an optional CONFIG_FILE, and the defaults, in that order.
func Load() (*model.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*model.Config, error) {
	token := v.GetString("DISCORD_TOKEN")
	if token == "" {
		token = v.GetString("BOT_TOKEN")
	}
	if token == "" {
		return nil, errors.New("DISCORD_TOKEN environment variable not set")
	}

	cfg := &model.Config{
		BotToken:         token,
		DBPath:           v.GetString("DB_PATH"),
		LogChannelID:     v.GetString("LOG_CHANNEL_ID"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		AdminRoleID:      v.GetString("ADMIN_ROLE_ID"),
		DeveloperUserIDs: splitIDs(v.GetString("DEVELOPER_USER_IDS")),
		GuildIDs:         splitIDs(v.GetString("GUILD_IDS")),
		AutoRestore:      v.GetBool("AUTO_RESTORE"),
		ConfirmTimeout:   v.GetDuration("CONFIRM_TIMEOUT"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		RetryAttempts:    v.GetInt("RETRY_ATTEMPTS"),
		RetryBaseDelay:   v.GetDuration("RETRY_BASE_DELAY"),
		RetryMaxDelay:    v.GetDuration("RETRY_MAX_DELAY"),
		RecoveryRate:     v.GetFloat64("RECOVERY_RATE"),
		MetricsAddr:      v.GetString("METRICS_ADDR"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *model.Config) error {
	switch {
	case cfg.DBPath == "":
		return errors.New("DB_PATH must not be empty")
	case cfg.ConfirmTimeout <= 0:
		return errors.Newf("CONFIRM_TIMEOUT must be positive, got %s", cfg.ConfirmTimeout)
	case cfg.SweepInterval <= 0:
		return errors.Newf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	case cfg.RetryAttempts < 1:
		return errors.Newf("RETRY_ATTEMPTS must be at least 1, got %d", cfg.RetryAttempts)
	case cfg.RetryBaseDelay <= 0:
		return errors.Newf("RETRY_BASE_DELAY must be positive, got %s", cfg.RetryBaseDelay)
	case cfg.RetryMaxDelay < cfg.RetryBaseDelay:
		return errors.Newf("RETRY_MAX_DELAY %s is below RETRY_BASE_DELAY %s", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	case cfg.RecoveryRate <= 0:
		return errors.Newf("RECOVERY_RATE must be positive, got %v", cfg.RecoveryRate)
	}
	return nil
}

// splitIDs parses a comma separated list of snowflakes, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
