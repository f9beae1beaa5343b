// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/models"
)

// copyTree copies the directory src to dst, recording every regular file
// under prefix. found is false when src does not exist.
func copyTree(ctx context.Context, src, dst, prefix string) (files []models.BackupFile, size int64, found bool, err error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	if !info.IsDir() {
		return nil, 0, true, fmt.Errorf("%s is not a directory", src)
	}

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o750)
		case d.Type().IsRegular():
			n, sum, err := copyFile(p, target)
			if err != nil {
				return err
			}
			size += n
			files = append(files, models.BackupFile{
				Path:     path.Join(prefix, filepath.ToSlash(rel)),
				Size:     n,
				Checksum: sum,
			})
			return nil
		default:
			logging.Warn().Str("path", p).Msg("Skipping non-regular file")
			return nil
		}
	})
	if err != nil {
		return nil, 0, true, err
	}
	return files, size, true, nil
}

// copyFile copies a single file, returning its size and SHA-256
//
//nolint:gosec // G304: paths come from configured artifact and backup directories
func copyFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close() //nolint:errcheck // read-only

	info, err := in.Stat()
	if err != nil {
		return 0, "", err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, "", err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		out.Close() //nolint:errcheck // Best effort cleanup on error
		return 0, "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close() //nolint:errcheck // Best effort cleanup on error
		return 0, "", err
	}
	if err := out.Close(); err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// fileChecksum returns the SHA-256 of a file
//
//nolint:gosec // G304: path is inside the backup root
func fileChecksum(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
