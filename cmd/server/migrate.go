package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/store-rating/internal/database"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, database.MigrateUp)
	},
}

var downSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrate) error {
			return database.MigrateDown(m, downSteps)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrate) error {
			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
}

func withMigrator(cmd *cobra.Command, fn func(m *migrate.Migrate) error) error {
	_, log, settings, err := bootstrap()
	if err != nil {
		return err
	}
	db, err := database.Open(cmd.Context(), *settings)
	if err != nil {
		return err
	}
	m, err := database.NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := fn(m); err != nil {
		return err
	}
	log.WithField("cmd", cmd.Name()).Info("migrate done")
	return nil
}
