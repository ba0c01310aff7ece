package bot

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"role-keeper/commands"
	"role-keeper/metrics"
	"role-keeper/utils"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Run opens the session, registers commands, rebuilds the grant timers and
// blocks until SIGINT or SIGTERM.
func (b *Bot) Run() error {
	if err := b.Session.Open(); err != nil {
		return errors.Wrap(err, "error opening connection")
	}
	cfg := b.GetConfig()

	cmds := commands.GenerateCommands()
	if len(cfg.GuildIDs) == 0 {
		if err := b.RefreshCommands("", cmds); err != nil {
			b.logger.Error("failed to register global commands", zap.Error(err))
		}
	}
	for _, guildID := range cfg.GuildIDs {
		if err := b.RefreshCommands(guildID, cmds); err != nil {
			b.logger.Error("failed to register guild commands", zap.String("guild", guildID), zap.Error(err))
		}
	}

	if cfg.AutoRestore {
		b.restoreGrants()
	} else {
		b.logger.Info("grant restore on startup is disabled")
	}

	b.startMetricsServer(cfg.MetricsAddr)
	b.scheduler.Start()

	b.logger.Info("bot is now running")
	b.logChannel(utils.LogInfo, "System", "Startup", "Bot has started successfully.")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	return nil
}

func (b *Bot) restoreGrants() {
	report, err := b.Grants.Recover(context.Background(), b.clock.Now())
	if err != nil {
		b.logger.Error("failed to restore temporary roles", zap.Error(err))
		b.logChannel(utils.LogError, "TempRole", "Restore", err.Error())
		return
	}
	b.logChannel(utils.LogInfo, "TempRole", "Restore", fmt.Sprintf(
		"Resumed %d, expired %d, failed %d temporary roles.", report.Resumed, report.Expired, report.Failed))
}

func (b *Bot) startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	b.metricsServer = &http.Server{Addr: addr, Handler: metrics.Handler(b.Registry)}
	go func() {
		b.logger.Info("serving metrics", zap.String("addr", addr))
		if err := b.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

type channelLogFunc func(s utils.ChannelMessenger, channelID, module, operation, details string) error

func (b *Bot) logChannel(fn channelLogFunc, module, operation, details string) {
	if err := fn(b.Session, b.GetConfig().LogChannelID, module, operation, details); err != nil {
		b.logger.Warn("failed to write audit log", zap.Error(err))
	}
}
