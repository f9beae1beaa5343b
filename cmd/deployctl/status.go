// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the production and test deployments",
		Long: `Show the recorded production and test deployments and the current version.

Only local state is read; the hosting service is not contacted.

Examples:
  deployctl status
  deployctl status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-only command

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), a.orch.State())
			}
			fmt.Fprint(cmd.OutOrStdout(), a.orch.Summary())
			return nil
		},
	}
}
