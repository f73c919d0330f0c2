// Command payroutectl performs operator tasks against the router's database
// and configuration.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"payroute.backend/internal/config"
	"payroute.backend/internal/infrastructure/datasources/postgres"
)

var Version = "dev"

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	openDB     = func(cfg *config.Config) (*gorm.DB, error) {
		sqlDB, err := postgres.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.OpenGorm(sqlDB, false)
	}
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payroutectl",
		Short:         "Operator tooling for the payment gateway router",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = loadDotenv()
		},
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(explainRouteCmd())
	rootCmd.AddCommand(sealSecretCmd())
	rootCmd.AddCommand(hashTokenCmd())
	return rootCmd
}

// withDB opens the configured database for the duration of fn.
func withDB(fn func(db *gorm.DB) error) error {
	db, err := openDB(loadCfg())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return fn(db)
}
