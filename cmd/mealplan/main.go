package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dukerupert/mealplan/internal/backup"
	"github.com/dukerupert/mealplan/internal/config"
	"github.com/dukerupert/mealplan/internal/database"
	"github.com/dukerupert/mealplan/internal/logging"
	"github.com/dukerupert/mealplan/internal/meal"
	"github.com/dukerupert/mealplan/internal/store"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	// Global flags
	dbPath    string
	logLevel  string
	ephemeral bool
)

var rootCmd = &cobra.Command{
	Use:   "mealplan",
	Short: "Plan, search and favorite meals",
	Long: `mealplan keeps a collection of planned meals in SQLite and serves it
over HTTP with live updates. Subcommands operate on the same collection
directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = dbPath
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}

		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides MEALPLAN_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides MEALPLAN_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep meals in memory only")

	rootCmd.AddCommand(serveCmd, listCmd, addCmd, favoriteCmd, backupCmd, restoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs.
type app struct {
	db     *sql.DB
	meals  *meal.Store
	backup *backup.Manager
}

// openApp opens the database and loads the meal collection. With
// --ephemeral the collection lives in memory and the database is an
// in-memory one used only for backup bookkeeping.
func openApp(statusCallback backup.StatusCallback) (*app, error) {
	path := cfg.DBPath
	if ephemeral {
		path = ":memory:"
	}
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var kv meal.ByteStore = store.NewKVStore(db)
	if ephemeral {
		kv = store.NewMemoryKV()
	}

	ms := meal.New(kv, meal.WithKey(cfg.StoreKey), meal.WithLogger(logger.With("component", "meal")))
	res := ms.Load()
	logger.Info("meals loaded", "outcome", string(res.Outcome), "count", len(res.Meals), "ephemeral", ephemeral)

	bm := backup.NewManager(cfg.Backup, ms, store.NewBackupStore(db), logger.With("component", "backup"), statusCallback)

	return &app{db: db, meals: ms, backup: bm}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
