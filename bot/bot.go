package bot

import (
	"context"
	"net/http"
	"role-keeper/metrics"
	"role-keeper/model"
	"role-keeper/tasks/temprole"
	"role-keeper/utils/clock"
	"role-keeper/utils/database"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Bot struct {
	Session            *discordgo.Session
	RegisteredCommands []*discordgo.ApplicationCommand
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)
	config             atomic.Value // *model.Config
	logger             *zap.Logger
	clock              clock.Clock

	DB       *sqlx.DB
	Store    *database.TempGrantStore
	Grants   *temprole.Scheduler
	Registry *prometheus.Registry

	StartedAt     time.Time
	scheduler     *Scheduler
	metricsServer *http.Server

	handlersMu     sync.Mutex
	removeHandlers []func()
}

func (b *Bot) GetConfig() *model.Config {
	return b.config.Load().(*model.Config)
}

func (b *Bot) GetSession() *discordgo.Session {
	return b.Session
}

func (b *Bot) GetLogger() *zap.Logger {
	return b.logger
}

func (b *Bot) GetClock() clock.Clock {
	return b.clock
}

// New wires the session, the grant store and the grant scheduler. The
// session is not opened until Run.
func New(cfg *model.Config, logger *zap.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	db, err := database.InitTempGrantDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store := database.NewTempGrantStore(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	clk := clock.Real()
	grants := temprole.NewScheduler(store, NewRoleGateway(dg, logger), temprole.Options{
		Clock:           clk,
		Logger:          logger,
		Metrics:         collector,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		RetryMaxDelay:   cfg.RetryMaxDelay,
		RecoveryLimiter: rate.NewLimiter(rate.Limit(cfg.RecoveryRate), 1),
	})

	b := &Bot{
		Session:   dg,
		logger:    logger,
		clock:     clk,
		DB:        db,
		Store:     store,
		Grants:    grants,
		Registry:  registry,
		StartedAt: clk.Now(),
	}
	b.config.Store(cfg)
	b.scheduler = NewScheduler(grants, clk, cfg.SweepInterval, logger)
	return b, nil
}

// Close stops background work first so no expiry runs against a closed
// session or database. Stored grants are left for the next start.
func (b *Bot) Close() {
	b.logger.Info("gracefully shutting down")

	b.RemoveHandlers()
	b.scheduler.Stop()
	b.Grants.Stop()

	if b.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.metricsServer.Shutdown(ctx); err != nil {
			b.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if err := b.Session.Close(); err != nil {
		b.logger.Warn("failed to close discord session", zap.Error(err))
	}
	if err := b.DB.Close(); err != nil {
		b.logger.Warn("failed to close database", zap.Error(err))
	}
}

// AddHandler registers a session event handler that Close detaches before
// the grant scheduler and database go away.
func (b *Bot) AddHandler(handler interface{}) {
	remove := b.Session.AddHandler(handler)
	b.handlersMu.Lock()
	b.removeHandlers = append(b.removeHandlers, remove)
	b.handlersMu.Unlock()
}

// RemoveHandlers detaches every handler added through AddHandler.
func (b *Bot) RemoveHandlers() {
	b.handlersMu.Lock()
	removers := b.removeHandlers
	b.removeHandlers = nil
	b.handlersMu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// RefreshCommands overwrites the slash commands for guildID, or the global
// commands when guildID is empty.
func (b *Bot) RefreshCommands(guildID string, cmds []*discordgo.ApplicationCommand) error {
	registered, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, guildID, cmds)
	if err != nil {
		return errors.Wrapf(err, "cannot update commands for guild %q", guildID)
	}
	b.RegisteredCommands = append(b.RegisteredCommands, registered...)
	b.logger.Info("registered commands", zap.String("guild", guildID), zap.Int("count", len(registered)))
	return nil
}
