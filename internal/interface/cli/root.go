package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/config"
	"github.com/neilberkman/linkscout/internal/core/db"
	"github.com/neilberkman/linkscout/internal/core/logging"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/session"
	"github.com/neilberkman/linkscout/internal/core/transport"
)

var (
	configPath  string
	dbPath      string
	logLevel    string
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "linkscout",
	Short: "Watch a link-discovery exploration grow",
	Long: `linkscout - follow an AI-driven link exploration from your terminal

Connects to an exploration process, starts a search from an article, and
renders the discovery tree live as related websites are found.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the explorer if no subcommand specified
		return exploreCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/linkscout/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database path (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log_level)")

	addArticleFlags(rootCmd)
}

// loadConfig reads the config file and applies the persistent flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// openLogger logs to the configured file when the terminal belongs to a UI,
// and to stderr otherwise.
func openLogger(cfg *config.Config, toFile bool) (*logging.Logger, error) {
	lc := logging.Config{Level: cfg.LogLevel}
	if toFile {
		lc.File = cfg.LogFile
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, nil
}

// exploration bundles a controller with the resources it holds
type exploration struct {
	controller *session.Controller
	conn       *transport.Client
	history    *db.DB
}

// newExploration wires transport, history, and controller for one article.
// History is optional: if the database can't be opened the exploration
// still runs.
func newExploration(cfg *config.Config, endpoint string, article models.ArticleData, logger *logging.Logger) *exploration {
	tc := cfg.Transport(endpoint)
	conn := transport.New(tc, logger.Logger)

	deps := session.Deps{Conn: conn, Logger: logger.Logger}

	history, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Warn("history disabled", "path", cfg.DBPath, "error", err)
	} else {
		deps.Recorder = history.Recorder(tc.URL)
	}

	return &exploration{
		controller: session.New(deps, article),
		conn:       conn,
		history:    history,
	}
}

func (e *exploration) Close() {
	_ = e.conn.Close()
	if e.history != nil {
		_ = e.history.Close()
	}
}
