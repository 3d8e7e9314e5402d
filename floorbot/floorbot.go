package floorbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/Aakash-1803/Nft-floor-price-cardano/floorbot.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var defaultLogWriter io.Writer = os.Stdout

// Bot is the explicitly constructed context object every core operation
// runs against: the outbound HTTP client, both upstream API clients,
// and the storage handle. New acquires everything the core operations
// need (so a Bot is fully usable without a Discord connection); Run
// attaches the Discord session and optional status API, and Close
// releases it all.
type Bot struct {
	config *Config

	// Standard logger. Subsystems get child handlers at their own
	// configured levels.
	logger     *slog.Logger
	logHandler slog.Handler

	db    *gorm.DB
	store *trackedStore

	marketplace *marketplaceClient
	cnft        *cnftClient

	discord *Discord
	api     *API

	startedAt time.Time

	// prevents Run from executing concurrently
	runMu sync.Mutex
}

// New builds a Bot from the config: log handlers, API clients, the
// database connection (created and migrated if absent), and the Discord
// wiring. The returned Bot's core operations are immediately usable;
// call Run to connect to Discord.
func New(ctx context.Context, config *Config) (*Bot, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.HTTPTimeout}
	}

	b := &Bot{config: config}

	b.logHandler = newLogHandler(config.LogLevel)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	b.marketplace = newMarketplaceClient(
		config.Marketplace,
		config.HTTPClient,
		config.RequestsPerSecond,
		slog.New(
			newLogHandler(config.Marketplace.LogLevel),
		).With(loggerNameKey, "marketplace"),
	)
	b.cnft = newCNFTClient(
		config.CNFT,
		config.HTTPClient,
		config.RequestsPerSecond,
		slog.New(
			newLogHandler(config.CNFT.LogLevel),
		).With(loggerNameKey, "cnft"),
	)

	gormLogger := newGORMLogger(
		newLogHandler(config.DatabaseLogLevel),
		config.DatabaseSlowThreshold,
	)
	db, err := getDB(config.DatabaseType, config.Database, gormLogger)
	if err != nil {
		return nil, err
	}
	if err = db.WithContext(ctx).AutoMigrate(&TrackedPolicy{}); err != nil {
		return nil, err
	}
	b.db = db
	b.store = newTrackedStore(db, config.DatabaseType, b.logger)

	config.Discord.httpClient = config.HTTPClient

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)

	disc := newDiscord(config.Discord, b)
	disc.logger = slog.New(
		newLogHandler(config.Discord.LogLevel),
	).With(loggerNameKey, "discord")
	b.discord = disc

	if config.API != nil && config.API.Enabled {
		b.api = newAPI(b, config.API)
	}

	return b, nil
}

// Run connects to Discord, registers the slash commands, starts the
// status API if enabled, and blocks until ctx is canceled. Initialization
// is bounded by [Config.StartupTimeout].
func (b *Bot) Run(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()

	if b.config.Discord.Token == "" {
		return errors.New("discord token must be set")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if b.api != nil {
		go func() {
			if err := b.api.Serve(ctx); err != nil {
				b.logger.Error("error serving status api", tint.Err(err))
			}
		}()
	}

	startCtx, startCancel := context.WithTimeout(
		ctx,
		b.config.StartupTimeout,
	)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		initErr <- b.initDiscordSession()
	}()

	select {
	case <-startCtx.Done():
		return errors.New("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			b.logger.Error("init error", tint.Err(err))
			return err
		}
	}

	b.logger.Info(
		"bot is running",
		"version", Version,
		"commit", CommitSHA,
	)

	<-ctx.Done()
	b.shutdown()
	return nil
}

func (b *Bot) initDiscordSession() error {
	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session

	b.discord.removeHandlerFuncs = append(
		b.discord.removeHandlerFuncs,
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(b.discord.handlerInteractionCreate()),
	)

	if err = session.Open(); err != nil {
		return err
	}

	if _, err = b.discord.registerCommands(); err != nil {
		_ = session.Close()
		return err
	}
	return nil
}

// shutdown closes the discord session and database, bounded by
// [Config.ShutdownTimeout]. A session close that hangs (discordgo waits
// on the gateway) is abandoned rather than blocking process exit.
func (b *Bot) shutdown() {
	b.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if b.discord != nil && b.discord.session != nil {
			for _, removeHandler := range b.discord.removeHandlerFuncs {
				removeHandler()
			}
			if err := b.discord.session.Close(); err != nil {
				b.logger.Error("error closing discord session", tint.Err(err))
			}
		}
		if err := b.closeDB(); err != nil {
			b.logger.Error("error closing database", tint.Err(err))
		}
	}()

	select {
	case <-done:
		b.logger.Info("shutdown complete")
	case <-ctx.Done():
		b.logger.Warn(
			"shutdown timed out",
			"timeout", b.config.ShutdownTimeout,
		)
	}
}

// Close releases the database connection. For a bot that was Run, the
// shutdown path already does this on context cancellation; Close exists
// for callers using the core operations directly.
func (b *Bot) Close() error {
	return b.closeDB()
}

func (b *Bot) closeDB() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
