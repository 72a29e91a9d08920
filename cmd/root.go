package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Face identification and spoken reminders for a memory-care companion",
	Long: `Companion watches a camera, recognizes the people a patient knows and says
their name out loud. Unknown visitors can be saved on the spot, and scheduled
tasks are announced shortly before they are due.

Known people, tasks and the encounter log are kept in PostgreSQL
(DATABASE_URL); the serve command can also run fully in memory.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// newLogger builds the component logger from LOG_ENV and LOG_LEVEL.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.NewLogger(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return log, nil
}
