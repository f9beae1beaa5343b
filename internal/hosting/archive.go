// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package hosting

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// writeArtifactArchive streams dir as a gzipped tar to w. Paths inside the
// archive are relative to dir and slash separated.
func writeArtifactArchive(ctx context.Context, w io.Writer, dir string) (err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("artifact directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact path %s is not a directory", dir)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	defer func() {
		if cerr := tw.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if cerr := gz.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dir || !(d.IsDir() || d.Type().IsRegular()) {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(p) //nolint:gosec // G304: inside the configured artifact directory
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck // read-only
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
}
