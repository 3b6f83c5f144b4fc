// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/waypost/waypost/internal/config"
	"github.com/waypost/waypost/internal/store"
)

// migrateConfig holds flags for the migrate subcommand.
type migrateConfig struct {
	down  bool
	force int
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	mc := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending schema migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, mc)
		},
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection string")
	cmd.Flags().BoolVar(&mc.down, "down", false, "roll back all migrations (destructive)")
	cmd.Flags().IntVar(&mc.force, "force", -1, "force the recorded version without running migrations")

	return cmd
}

func runMigrate(cmd *cobra.Command, mc *migrateConfig) error {
	if mc.down && mc.force >= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("--down and --force are mutually exclusive")
	}

	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	m, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch {
	case mc.force >= 0:
		if err := m.Force(mc.force); err != nil {
			return err
		}
		cmd.Printf("Forced migration version to %d\n", mc.force)
	case mc.down:
		cmd.Println("Rolling back all migrations...")
		if err := m.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback completed")
	default:
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
	}
	return nil
}
