package main

import (
	"github.com/spf13/cobra"

	"garagelink/internal/database"
	applog "garagelink/internal/log"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.NewDB(&cfg.Database)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			logger := applog.WithComponent("migrate")
			logger.Info().Msg("schema up to date")
			return nil
		},
	}
}
