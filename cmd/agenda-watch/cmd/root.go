package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfenderov/agenda-watch/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
	cfg       config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "agenda-watch",
	Short: "agenda-watch: government meeting agenda monitor",
	Long: `agenda-watch finds the current meeting agenda of each configured public
body, checks that it really is an agenda, and reports meaningful changes since
the last check while ignoring timestamps and page numbering.

Commands:
  check     Check sources once and report changes
  discover  Show how the agenda of one source is found
  probe     Survey a source's site to tune allow and block lists
  watch     Check sources on a schedule
  sweep     Delete stale fetch cache entries
  search    Search detected changes
  serve     Start the MCP server`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/agenda-watch")
		viper.AddConfigPath(".")
	}

	// AGENDAWATCH_STORAGE_BACKEND -> storage.backend
	viper.SetEnvPrefix("AGENDAWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Nested keys are only seen by Unmarshal when bound explicitly.
	for _, key := range []string{
		"storage.backend", "storage.dir", "storage.endpoint", "storage.bucket",
		"storage.access_key_id", "storage.secret_access_key", "storage.use_ssl",
		"state.backend", "state.redis_addr", "state.redis_password", "state.redis_db",
		"elasticsearch.enabled", "elasticsearch.index", "elasticsearch.username", "elasticsearch.password",
		"fetcher.min_domain_delay", "fetcher.user_agent", "fetcher.respect_robots",
		"monitor.workers", "monitor.schedule", "monitor.archive_documents",
		"metrics.addr", "mcp.name", "mcp.version",
	} {
		viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Comma-separated addresses from the environment.
	if addrs := os.Getenv("AGENDAWATCH_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
