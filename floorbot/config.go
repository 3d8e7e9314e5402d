//nolint:lll // struct tags can't be split
package floorbot

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	EnvPrefix                    = "FLOORBOT"
	DefaultDatabase              = "floorbot.sqlite3"
	DefaultDatabaseType          = "sqlite"
	DefaultLogLevel              = slog.LevelInfo
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultStartupTimeout        = 30 * time.Second
	DefaultShutdownTimeout       = 60 * time.Second

	DefaultMarketplaceBaseURL = "https://server.jpgstoreapis.com"
	DefaultCNFTBaseURL        = "https://api.opencnft.io/1"
	DefaultIPFSGatewayURL     = "https://ipfs.io/ipfs"
	DefaultHTTPTimeout        = 15 * time.Second
	DefaultRequestsPerSecond  = 4
	DefaultSearchLimit        = 5

	DefaultAPIListen         = "127.0.0.1:5002"
	DefaultAPILogLevel       = slog.LevelInfo
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DiscordSlashCommandFloor   = "floor"
	DiscordSlashCommandTracked = "tracked"
	DiscordSlashCommandTrack   = "track"
	DiscordSlashCommandUntrack = "untrack"
	DiscordSlashCommandHelp    = "help"

	DefaultDiscordGatewayIntent  = discordgo.IntentsAllWithoutPrivileged
	DefaultDiscordStartupMessage = "I'm here!"
	DefaultDiscordCustomStatus   = "/floor prices!"
	DefaultDiscordErrorMessage   = "sorry, something went wrong!"
)

// Config is the top-level, start-time configuration. It's decoded by the
// cmd layer from environment variables (FLOORBOT_* via viper) and holds
// everything the bot needs to construct its clients and storage handle.
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits how long initialization (database, discord
	// session, command registration) may take before Run aborts
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time allowed for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Marketplace configures the primary marketplace API client
	Marketplace *MarketplaceConfig `yaml:"marketplace" mapstructure:"marketplace" json:"marketplace"`

	// CNFT configures the secondary stats provider client
	CNFT *CNFTConfig `yaml:"cnft" mapstructure:"cnft" json:"cnft"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// API configures the optional status HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// HTTPClient is used for all outbound API requests. Mainly useful
	// for tests; defaults to a client with [Config.HTTPTimeout].
	HTTPClient *http.Client `yaml:"-" mapstructure:"-" json:"-"`

	// HTTPTimeout applies to every outbound API request
	HTTPTimeout time.Duration `yaml:"http_timeout" mapstructure:"http_timeout" json:"http_timeout"`

	// RequestsPerSecond caps outbound requests per upstream host
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" json:"requests_per_second"`
}

// MarketplaceConfig configures the marketplace API client (search,
// floor price, transactions).
type MarketplaceConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// SearchLimit is the maximum number of candidate collections a
	// free-text lookup resolves
	SearchLimit int `yaml:"search_limit" mapstructure:"search_limit" json:"search_limit"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// CNFTConfig configures the secondary provider client (policy stats,
// thumbnails).
type CNFTConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// IPFSGateway is the content-addressed gateway thumbnails are
	// rewritten against
	IPFSGateway string `yaml:"ipfs_gateway" mapstructure:"ipfs_gateway" json:"ipfs_gateway"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DiscordConfig configures the Discord integration.
type DiscordConfig struct {
	Token         string `yaml:"token" mapstructure:"token" json:"-"`
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id"`

	// GuildID, if set, registers the slash commands on a single guild
	// instead of globally (guild registration propagates immediately)
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// NotificationChannelID, if set, receives StartupMessage on connect
	NotificationChannelID string `yaml:"notification_channel_id" mapstructure:"notification_channel_id" json:"notification_channel_id"`

	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`
	CustomStatus   string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// DiscordGoLogLevel sets the log level for the discordgo library itself
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

// APIConfig configures the optional status/health HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen" json:"listen"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DefaultConfig returns a Config with all defaults set. The Discord
// token and application ID are the only fields with no usable default.
func DefaultConfig() *Config {
	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      levelVar(DefaultDatabaseLogLevel),
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              levelVar(DefaultLogLevel),
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		HTTPTimeout:           DefaultHTTPTimeout,
		RequestsPerSecond:     DefaultRequestsPerSecond,
		Marketplace: &MarketplaceConfig{
			BaseURL:     DefaultMarketplaceBaseURL,
			SearchLimit: DefaultSearchLimit,
			LogLevel:    levelVar(DefaultLogLevel),
		},
		CNFT: &CNFTConfig{
			BaseURL:     DefaultCNFTBaseURL,
			IPFSGateway: DefaultIPFSGatewayURL,
			LogLevel:    levelVar(DefaultLogLevel),
		},
		Discord: &DiscordConfig{
			StartupMessage:    DefaultDiscordStartupMessage,
			CustomStatus:      DefaultDiscordCustomStatus,
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          levelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel: levelVar(DefaultDiscordgoLogLevel),
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			LogLevel:          levelVar(DefaultAPILogLevel),
		},
	}
}

// Validate checks the parts of the config Run depends on. It doesn't
// require a Discord token, so configs built for tests (or for one-off
// CLI use of the core operations) still pass.
func (c *Config) Validate() error {
	var errs []error

	switch c.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			fmt.Errorf(
				"invalid database type %q (must be %q or %q)",
				c.DatabaseType, dbTypeSQLite, dbTypePostgres,
			),
		)
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database must be set"))
	}
	if c.Marketplace == nil || c.Marketplace.BaseURL == "" {
		errs = append(errs, errors.New("marketplace.base_url must be set"))
	}
	if c.CNFT == nil || c.CNFT.BaseURL == "" {
		errs = append(errs, errors.New("cnft.base_url must be set"))
	}
	if c.Marketplace != nil && c.Marketplace.SearchLimit < 1 {
		errs = append(errs, errors.New("marketplace.search_limit must be >= 1"))
	}
	return errors.Join(errs...)
}

func levelVar(level slog.Level) *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(level)
	return v
}
