package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"payroute.backend/internal/infrastructure/models"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table the router uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *gorm.DB) error {
				all := models.All()
				if err := db.WithContext(cmd.Context()).AutoMigrate(all...); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(all))
				return nil
			})
		},
	}
}
