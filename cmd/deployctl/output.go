// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/tomtom215/recdeploy/internal/models"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warning)
	}
}

func printRecord(w io.Writer, title string, rec *models.DeploymentRecord) {
	fmt.Fprintf(w, "%s (v%d)\n", title, rec.Version)
	fmt.Fprintf(w, "   Deployment: %s\n", rec.DeploymentID)
	fmt.Fprintf(w, "   Model: %s\n", rec.ModelID)
	fmt.Fprintf(w, "   Endpoint: %s\n", rec.Endpoint)
}

func backupSize(meta *models.BackupMetadata) uint64 {
	var total int64
	for _, f := range meta.Files {
		total += f.Size
	}
	return uint64(total) //nolint:gosec // sizes are never negative
}

func versionLabel(v *int) string {
	if v == nil {
		return "-"
	}
	return "v" + strconv.Itoa(*v)
}

// printBackups renders backups as a table, newest last
func printBackups(w io.Writer, backups []*models.BackupMetadata) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tCREATED\tPRODUCTION MODEL\tFILES\tSIZE")
	for _, b := range backups {
		prod := "-"
		if b.ProductionDeployment != nil {
			prod = b.ProductionDeployment.ModelID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			filepath.Base(b.BackupPath),
			versionLabel(b.Version),
			humanize.Time(b.BackupDate),
			prod,
			len(b.Files),
			humanize.Bytes(backupSize(b)),
		)
	}
	return tw.Flush()
}
