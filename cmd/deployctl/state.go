// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tomtom215/recdeploy/internal/statestore"
)

// errRevisionsUnsupported is returned when the state backend keeps no journal
var errRevisionsUnsupported = errors.New("state revisions require the badger state backend (state.backend: badger)")

func newStateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the deployment state store",
	}
	cmd.AddCommand(newStateRevisionsCmd(opts))
	return cmd
}

func newStateRevisionsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "List previously saved deployment states, oldest first",
		Long: `List the revision journal of the badger state backend. Every saved state
is kept, so the journal shows how production and the test slot changed over
time. Use it to find the values for repair after a bad promotion.

Examples:
  deployctl state revisions
  deployctl state revisions --limit 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			a, err := openApp(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-only command

			journal, ok := a.store.(*statestore.BadgerStore)
			if !ok {
				return errRevisionsUnsupported
			}
			revs, err := journal.Revisions(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, revs)
			}
			if len(revs) == 0 {
				fmt.Fprintln(out, "No saved state revisions")
				return nil
			}
			return printRevisions(out, revs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Show only the newest N revisions (0 = all)")
	return cmd
}

// printRevisions renders the journal as a table, newest last
func printRevisions(w io.Writer, revs []*statestore.Revision) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSAVED\tVERSION\tPRODUCTION MODEL\tTEST")
	for _, r := range revs {
		prod, test := "-", "-"
		version := 0
		if r.State != nil {
			version = r.State.CurrentVersion
			if p := r.State.ProductionDeployment; p != nil {
				prod = p.ModelID
			}
			if t := r.State.TestDeployment; t != nil {
				test = "v" + strconv.Itoa(t.Version) + " " + t.DeploymentID
			}
		}
		fmt.Fprintf(tw, "%d\t%s (%s)\t%s\t%s\t%s\n",
			r.Seq,
			r.SavedAt.Format(time.RFC3339),
			humanize.Time(r.SavedAt),
			"v"+strconv.Itoa(version),
			prod,
			test,
		)
	}
	return tw.Flush()
}
