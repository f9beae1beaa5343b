// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/recdeploy/internal/backup"
	"github.com/tomtom215/recdeploy/internal/deploy"
)

// parseVersion accepts "3" or "v3"
func parseVersion(arg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(arg), "v"))
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid version %q: expected a positive number such as 3 or v3", arg)
	}
	return v, nil
}

func newRollbackCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback VERSION",
		Short: "Restore local artifacts from a version's backup",
		Long: `Restore the live artifact and results directories from the most recent
backup of VERSION. Only local files change: deployment state and the hosting
service are untouched. Backups are checksum-verified first unless --force.
The replaced directories are saved as a new backup first, so a rollback can
itself be rolled back.

Examples:
  deployctl rollback 3
  deployctl rollback v3 --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // no state written

			res, err := a.orch.RollbackArtifacts(cmd.Context(), version, backup.RestoreOptions{Force: force})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, res)
			}
			if res.PreRestoreBackup != "" {
				fmt.Fprintf(out, "Safety backup of the replaced files: %s\n", res.PreRestoreBackup)
			}
			fmt.Fprintf(out, "Restored from %s:\n", res.BackupPath)
			for _, p := range res.Restored {
				fmt.Fprintf(out, "   %s\n", p)
			}
			printWarnings(out, res.Warnings)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip checksum verification of the backup")
	return cmd
}

func newRepairCmd(opts *rootOptions) *cobra.Command {
	var req deploy.RepairRequest

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Overwrite recorded production with what is actually deployed",
		Long: `Record the given deployment as production at the given version and clear
the test slot. Use this when state no longer matches what production serves,
for example after a promotion whose state save failed. The version may be
lower than the current one. The remote test deployment is not deleted.

Example:
  deployctl repair --deployment-id ocid1.deployment.oc1..xyz \
    --model-id ocid1.model.oc1..abc \
    --endpoint https://hosting.example.com/deployments/xyz/predict \
    --version 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // state is saved by the orchestrator

			res, err := a.orch.RepairState(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printRepair(cmd, opts, res)
		},
	}

	cmd.Flags().StringVar(&req.DeploymentID, "deployment-id", "", "Production deployment id (required)")
	cmd.Flags().StringVar(&req.ModelID, "model-id", "", "Model id production actually serves (required)")
	cmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "Production endpoint (required)")
	cmd.Flags().IntVar(&req.Version, "version", 0, "Version of the served model (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Description to record")
	return cmd
}

func newRepairFromBackupCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "repair-from-backup VERSION",
		Short: "Repair state from the production recorded in a version's backup",
		Long: `Repair state using the production deployment recorded in the most recent
backup of VERSION. When the hosting service is configured, the backup's model
must still be what that deployment serves; --force skips the check.

Example:
  deployctl repair-from-backup 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // state is saved by the orchestrator

			res, err := a.orch.RepairFromBackup(cmd.Context(), version, deploy.RepairFromBackupOptions{Force: force})
			if err != nil {
				return err
			}
			return printRepair(cmd, opts, res)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Do not check the backup against the live deployment")
	return cmd
}

func printRepair(cmd *cobra.Command, opts *rootOptions, res *deploy.RepairResult) error {
	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return printJSON(out, res)
	}
	printRecord(out, "Repaired PRODUCTION", res.Production)
	if res.BackupPath != "" {
		fmt.Fprintf(out, "   Source: %s\n", res.BackupPath)
	}
	if t := res.ClearedTest; t != nil {
		fmt.Fprintf(out, "\nCleared test v%d from state; delete deployment %s if it still exists\n", t.Version, t.DeploymentID)
	}
	fmt.Fprintf(out, "\nNext staged model will be v%d\n", res.Production.Version+1)
	return nil
}
