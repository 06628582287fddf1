package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shrutib31/soul-buddy/internal/api"
	"github.com/shrutib31/soul-buddy/internal/genai"
	"github.com/shrutib31/soul-buddy/internal/lockfile"
	"github.com/shrutib31/soul-buddy/internal/store"
	"github.com/shrutib31/soul-buddy/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Soul Buddy state data
	DefaultStateDir = "/var/lib/soulbuddy"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "soulbuddy.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Guard the state directory against a second instance
	if usesFileStorage(flags) {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	ollamaOpts := buildOllamaOptions(flags)
	apiOpts := buildAPIOptions(flags, config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the service
	slog.Info("Bootstrapping Soul Buddy with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "ollama", len(ollamaOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(ctx, storeOpts, genaiOpts, ollamaOpts, apiOpts...); err != nil {
		slog.Error("Soul Buddy failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Soul Buddy exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	OpenAIKey        string
	OpenAIModel      string
	OllamaBaseURL    string
	OllamaModel      string
	APIAddr          string
	PreferredBackend string
	CleanupCron      string
	IncognitoTTL     time.Duration
	TurnTimeout      time.Duration
	Threshold        int
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	ollamaBaseURL *string
	ollamaModel   *string
	apiAddr       *string
	preferred     *string
}

// initializeLogger sets up structured logging. DEBUG=true lowers the level
// to debug; the default is info.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("SOULBUDDY_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		OllamaBaseURL:    os.Getenv("OLLAMA_BASE_URL"),
		OllamaModel:      os.Getenv("OLLAMA_MODEL"),
		APIAddr:          os.Getenv("API_ADDR"),
		PreferredBackend: os.Getenv("PREFERRED_BACKEND"),
		CleanupCron:      os.Getenv("CLEANUP_SCHEDULE"),
		IncognitoTTL:     util.ParseDurationEnv("INCOGNITO_TTL", 24*time.Hour),
		TurnTimeout:      util.ParseDurationEnv("TURN_TIMEOUT", 0),
		Threshold:        util.ParseIntEnv("READINESS_THRESHOLD", 0),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SOULBUDDY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SOULBUDDY_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OLLAMA_BASE_URL", config.OllamaBaseURL,
		"API_ADDR", config.APIAddr,
		"PREFERRED_BACKEND", config.PreferredBackend)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for Soul Buddy data (overrides $SOULBUDDY_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		ollamaBaseURL: flag.String("ollama-base-url", config.OllamaBaseURL, "Ollama server base URL (overrides $OLLAMA_BASE_URL)"),
		ollamaModel:   flag.String("ollama-model", config.OllamaModel, "Ollama generation model (overrides $OLLAMA_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		preferred:     flag.String("preferred-backend", config.PreferredBackend, "generation backend preferred when both succeed (overrides $PREFERRED_BACKEND)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"ollamaBaseURL", *flags.ollamaBaseURL,
		"apiAddr", *flags.apiAddr,
		"preferred", *flags.preferred)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// usesFileStorage reports whether the configured DSN is a file path rather
// than a network database.
func usesFileStorage(flags Flags) bool {
	return !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=")
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if usesFileStorage(flags) {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs OpenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildOllamaOptions constructs Ollama configuration options
func buildOllamaOptions(flags Flags) []genai.OllamaOption {
	var ollamaOpts []genai.OllamaOption
	if *flags.ollamaBaseURL != "" {
		ollamaOpts = append(ollamaOpts, genai.WithOllamaBaseURL(*flags.ollamaBaseURL))
	}
	if *flags.ollamaModel != "" {
		ollamaOpts = append(ollamaOpts, genai.WithOllamaModel(*flags.ollamaModel))
	}
	return ollamaOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.preferred != "" {
		apiOpts = append(apiOpts, api.WithPreferredBackend(*flags.preferred))
	}
	if config.CleanupCron != "" {
		apiOpts = append(apiOpts, api.WithCleanupSpec(config.CleanupCron))
	}
	if config.IncognitoTTL > 0 {
		apiOpts = append(apiOpts, api.WithIncognitoTTL(config.IncognitoTTL))
	}
	if config.TurnTimeout > 0 {
		apiOpts = append(apiOpts, api.WithTurnTimeout(config.TurnTimeout))
	}
	if config.Threshold > 0 {
		apiOpts = append(apiOpts, api.WithReadinessThreshold(config.Threshold))
	}
	return apiOpts
}
