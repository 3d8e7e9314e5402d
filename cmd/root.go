package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/Aakash-1803/Nft-floor-price-cardano/floorbot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = floorbot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "floorbot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes log level strings into the config's
// *slog.LevelVar fields.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", floorbot.DefaultDatabase)
	viper.SetDefault("database_type", floorbot.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		floorbot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		floorbot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", floorbot.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", floorbot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", floorbot.DefaultShutdownTimeout)
	viper.SetDefault("http_timeout", floorbot.DefaultHTTPTimeout)
	viper.SetDefault("requests_per_second", floorbot.DefaultRequestsPerSecond)

	viper.SetDefault("marketplace.base_url", floorbot.DefaultMarketplaceBaseURL)
	viper.SetDefault("marketplace.search_limit", floorbot.DefaultSearchLimit)
	viper.SetDefault("marketplace.log_level", floorbot.DefaultLogLevel.String())

	viper.SetDefault("cnft.base_url", floorbot.DefaultCNFTBaseURL)
	viper.SetDefault("cnft.ipfs_gateway", floorbot.DefaultIPFSGatewayURL)
	viper.SetDefault("cnft.log_level", floorbot.DefaultLogLevel.String())

	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.notification_channel_id", "")
	viper.SetDefault(
		"discord.startup_message",
		floorbot.DefaultDiscordStartupMessage,
	)
	viper.SetDefault(
		"discord.custom_status",
		floorbot.DefaultDiscordCustomStatus,
	)
	viper.SetDefault(
		"discord.gateway_intents",
		int(floorbot.DefaultDiscordGatewayIntent),
	)
	viper.SetDefault(
		"discord.log_level",
		floorbot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		floorbot.DefaultDiscordgoLogLevel.String(),
	)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", floorbot.DefaultAPIListen)
	viper.SetDefault("api.read_timeout", floorbot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		floorbot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", floorbot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", floorbot.DefaultIdleTimeout)
	viper.SetDefault("api.log_level", floorbot.DefaultAPILogLevel.String())

	viper.SetEnvPrefix(floorbot.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Convert values to correct types. The decode hook alone doesn't
	// cover these: viper hands Unmarshal the string values, so each
	// log-level key is pre-converted to a *slog.LevelVar here.
	for _, key := range []string{
		"log_level",
		"database_log_level",
		"marketplace.log_level",
		"cnft.log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		if _, ok := viper.Get(key).(*slog.LevelVar); ok {
			// already converted on a previous initialization
			continue
		}
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level, err := getLogLevel(lvl)
	if err != nil {
		return nil, err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(level)
	return levelVar, nil
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"env-file",
		"",
		"Path to a .env file to load before reading the environment",
	)
}
