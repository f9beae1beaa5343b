// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tomtom215/recdeploy/internal/models"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the live artifact and results directories",
		Long: `Copy the live artifact and results directories into a new backup under
the backup root, tagged with the current production version.

Example:
  deployctl backup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // no state written

			meta, err := a.orch.Backup(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, meta)
			}
			fmt.Fprintf(out, "Created %s (%s, %d files, %s)\n",
				meta.BackupPath, versionLabel(meta.Version), len(meta.Files), humanize.Bytes(backupSize(meta)))
			return nil
		},
	}
}

func newBackupsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List, verify and prune backups",
	}
	cmd.AddCommand(
		newBackupsListCmd(opts),
		newBackupsValidateCmd(opts),
		newBackupsPruneCmd(opts),
	)
	return cmd
}

func newBackupsListCmd(opts *rootOptions) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-only command

			backups, err := a.backups.ListBackups()
			if err != nil {
				return err
			}
			if version > 0 {
				filtered := make([]*models.BackupMetadata, 0, len(backups))
				for _, b := range backups {
					if b.HasVersion(version) {
						filtered = append(filtered, b)
					}
				}
				backups = filtered
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, backups)
			}
			if len(backups) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", a.backups.Root())
				return nil
			}
			return printBackups(out, backups)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Only list backups of this version")
	return cmd
}

func newBackupsValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate NAME|VERSION",
		Short: "Verify a backup's files against its checksums",
		Long: `Verify a backup directory's files against the checksums in its metadata.
The argument is a backup directory name, or a version to check that
version's newest backup.

Examples:
  deployctl backups validate v3_20260501_120000
  deployctl backups validate 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-only command

			meta, err := resolveBackup(a, args[0])
			if err != nil {
				return err
			}
			res, err := a.backups.ValidateBackup(meta)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s: %d files checked\n", meta.BackupPath, res.FilesChecked)
				for _, e := range res.Errors {
					fmt.Fprintf(out, "ERROR: %s\n", e)
				}
				printWarnings(out, res.Warnings)
			}
			if !res.Valid {
				return fmt.Errorf("backup %s is invalid", filepath.Base(meta.BackupPath))
			}
			return nil
		},
	}
}

// resolveBackup finds a backup by directory name, falling back to a version
func resolveBackup(a *app, arg string) (*models.BackupMetadata, error) {
	backups, err := a.backups.ListBackups()
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		if filepath.Base(b.BackupPath) == arg {
			return b, nil
		}
	}

	version, err := parseVersion(arg)
	if err != nil {
		return nil, fmt.Errorf("no backup named %q in %s", arg, a.backups.Root())
	}
	return a.backups.LatestForVersion(version)
}

func newBackupsPruneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups outside the retention policy",
		Long: `Delete backups the configured retention policy does not keep. Backups are
never deleted by any other command.

The policy keeps at least backup.min_count backups and, with
backup.keep_latest_per_version, the newest backup of every version.

Example:
  deployctl backups prune`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // no state written

			res, err := a.backups.ApplyRetention(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, res)
			}
			for _, d := range res.Deleted {
				fmt.Fprintf(out, "Deleted %s\n", d)
			}
			fmt.Fprintf(out, "%d deleted, %d kept\n", len(res.Deleted), res.Kept)
			return nil
		},
	}
}
