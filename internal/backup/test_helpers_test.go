// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testEnv holds a backup root plus live artifact and results trees
type testEnv struct {
	root        string
	artifactDir string
	resultsDir  string
	now         time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	e := &testEnv{
		root:        filepath.Join(dir, "backups"),
		artifactDir: filepath.Join(dir, "work", "recommender_model_artifact"),
		resultsDir:  filepath.Join(dir, "work", "results"),
		now:         time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC),
	}

	writeTree(t, e.artifactDir, map[string]string{
		"model.pkl":           "weights-v1",
		"runtime.yaml":        "python: 3.11",
		"nested/mappings.csv": "user,item",
	})
	writeTree(t, e.resultsDir, map[string]string{
		"metrics.json": `{"precision_at_10": 0.21}`,
	})
	return e
}

func (e *testEnv) config() *Config {
	return &Config{
		BackupRoot:  e.root,
		ArtifactDir: e.artifactDir,
		ResultsDir:  e.resultsDir,
		ProjectName: "product-recommender",
		Retention:   DefaultRetentionPolicy(),
	}
}

// newTestManager returns a manager whose clock reads e.now
func (e *testEnv) newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(e.config())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	m.now = func() time.Time { return e.now }
	return m
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

// readTree returns slash-separated relative path -> content for every file under dir
func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("read tree %s: %v", dir, err)
	}
	return out
}

func intPtr(v int) *int {
	return &v
}
