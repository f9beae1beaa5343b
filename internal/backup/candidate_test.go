// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package backup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSaveCandidate_InstallReplacesLiveTrees(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()

	training := filepath.Join(filepath.Dir(env.root), "training")
	trainArtifact := filepath.Join(training, "model_artifacts")
	trainResults := filepath.Join(training, "results")
	writeTree(t, trainArtifact, map[string]string{"model.pkl": "weights-v2"})
	writeTree(t, trainResults, map[string]string{"metrics.json": `{"precision_at_10": 0.3}`})

	path, err := m.SaveCandidate(ctx, 2, CandidateSource{ArtifactDir: trainArtifact, ResultsDir: trainResults})
	if err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	if path != m.CandidatePath(2) {
		t.Errorf("path = %s, want %s", path, m.CandidatePath(2))
	}

	// Retraining after staging must not change what gets installed
	writeTree(t, trainArtifact, map[string]string{"model.pkl": "weights-v3"})

	backups, err := m.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("candidates must not be listed as backups, got %d", len(backups))
	}

	result, err := m.InstallCandidate(ctx, 2)
	if err != nil {
		t.Fatalf("InstallCandidate: %v", err)
	}
	if len(result.Restored) != 2 || len(result.Warnings) != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := readTree(t, env.artifactDir); len(got) != 1 || got["model.pkl"] != "weights-v2" {
		t.Errorf("live artifact = %v, want only weights-v2", got)
	}
	if got := readTree(t, env.resultsDir); got["metrics.json"] != `{"precision_at_10": 0.3}` {
		t.Errorf("live results = %v", got)
	}
	if exists(path) {
		t.Error("candidate should be removed after install")
	}
	assertNoLeftovers(t, filepath.Dir(env.artifactDir))

	if _, err := m.InstallCandidate(ctx, 2); !errors.Is(err, ErrCandidateNotFound) {
		t.Errorf("second install: expected ErrCandidateNotFound, got %v", err)
	}
}

func TestSaveCandidate_WithoutResultsLeavesLiveResults(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()

	trainArtifact := filepath.Join(filepath.Dir(env.root), "training", "model_artifacts")
	writeTree(t, trainArtifact, map[string]string{"model.pkl": "weights-v2"})
	before := readTree(t, env.resultsDir)

	if _, err := m.SaveCandidate(ctx, 2, CandidateSource{ArtifactDir: trainArtifact}); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	result, err := m.InstallCandidate(ctx, 2)
	if err != nil {
		t.Fatalf("InstallCandidate: %v", err)
	}
	if len(result.Restored) != 1 || len(result.Warnings) != 1 {
		t.Errorf("expected one installed tree and one warning, got %+v", result)
	}
	if got := readTree(t, env.resultsDir); got["metrics.json"] != before["metrics.json"] {
		t.Errorf("live results changed: %v", got)
	}
}

func TestSaveCandidate_RejectsLiveDirectories(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		src  CandidateSource
	}{
		{"live artifact", CandidateSource{ArtifactDir: env.artifactDir}},
		{"inside live artifact", CandidateSource{ArtifactDir: filepath.Join(env.artifactDir, "nested")}},
		{"parent of live trees", CandidateSource{ArtifactDir: filepath.Dir(env.artifactDir)}},
		{"live results", CandidateSource{ArtifactDir: t.TempDir(), ResultsDir: env.resultsDir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.SaveCandidate(ctx, 2, tt.src)
			if !errors.Is(err, ErrCandidateIsLive) {
				t.Errorf("expected ErrCandidateIsLive, got %v", err)
			}
			if exists(m.CandidatePath(2)) {
				t.Error("nothing should be saved")
			}
		})
	}
}

func TestSaveCandidate_MissingSource(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)

	_, err := m.SaveCandidate(context.Background(), 2, CandidateSource{ArtifactDir: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("expected error for missing artifact dir")
	}
	if exists(m.CandidatePath(2)) {
		t.Error("nothing should be saved")
	}
}

func TestDiscardCandidate(t *testing.T) {
	env := newTestEnv(t)
	m := env.newTestManager(t)
	ctx := context.Background()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"model.pkl": "weights-v2"})
	if _, err := m.SaveCandidate(ctx, 2, CandidateSource{ArtifactDir: src}); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}

	if err := m.DiscardCandidate(2); err != nil {
		t.Fatalf("DiscardCandidate: %v", err)
	}
	if exists(m.CandidatePath(2)) {
		t.Error("candidate still present")
	}
	if err := m.DiscardCandidate(2); err != nil {
		t.Errorf("discarding a missing candidate should succeed, got %v", err)
	}
	if got := readTree(t, env.artifactDir); got["model.pkl"] != "weights-v1" {
		t.Errorf("live artifact changed: %v", got)
	}
}
