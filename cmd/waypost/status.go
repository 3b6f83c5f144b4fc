// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waypost/waypost/internal/config"
	"github.com/waypost/waypost/internal/store"
)

// MigrationStatus is the schema state reported by the status subcommand.
type MigrationStatus struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`
	Dirty   bool   `json:"dirty"`
	Applied []uint `json:"applied"`
	Pending []uint `json:"pending"`
}

// statusConfig holds flags for the status subcommand.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	sc := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database schema status",
		Long:  `Show the current migration version and any pending migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, sc)
		},
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection string")
	cmd.Flags().BoolVar(&sc.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, sc *statusConfig) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	m, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	status, err := collectStatus(m)
	if err != nil {
		return err
	}

	if sc.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatusTable(status))
	return nil
}

func collectStatus(m *store.Migrator) (*MigrationStatus, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}
	name, err := store.MigrationName(version)
	if err != nil {
		return nil, err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return nil, err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return nil, err
	}

	return &MigrationStatus{
		Version: int(version),
		Name:    name,
		Dirty:   dirty,
		Applied: applied,
		Pending: pending,
	}, nil
}

func formatStatusTable(status *MigrationStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	current := "none"
	if status.Version > 0 {
		current = fmt.Sprintf("%d (%s)", status.Version, status.Name)
	}
	state := "clean"
	if status.Dirty {
		state = "dirty - manual intervention required"
	}

	_, _ = fmt.Fprintf(w, "CURRENT\t%s\n", current)
	_, _ = fmt.Fprintf(w, "STATE\t%s\n", state)
	_, _ = fmt.Fprintf(w, "APPLIED\t%d\n", len(status.Applied))
	_, _ = fmt.Fprintf(w, "PENDING\t%d\n", len(status.Pending))
	for _, v := range status.Pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		_, _ = fmt.Fprintf(w, "\t- %s\n", name)
	}
	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
