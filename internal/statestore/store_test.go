// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package statestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/recdeploy/internal/models"
)

func ts(minute int) time.Time {
	return time.Date(2026, 3, 14, 9, minute, 0, 0, time.UTC)
}

func tsPtr(minute int) *time.Time {
	t := ts(minute)
	return &t
}

// sampleStates covers the shapes a state can take: empty, test only,
// production only, and both slots with a replaced record in history.
func sampleStates() map[string]*models.DeploymentState {
	v1 := &models.DeploymentRecord{
		DeploymentID: "dep-prod",
		ModelID:      "model-1",
		Endpoint:     "https://hosting.example/dep-prod/predict",
		Version:      1,
		Status:       models.StatusProduction,
		CreatedAt:    ts(0),
		PromotedAt:   tsPtr(5),
		Description:  "Trained with 1,000 users and 200 products",
	}
	v2 := &models.DeploymentRecord{
		DeploymentID: "dep-test",
		ModelID:      "model-2",
		Endpoint:     "https://hosting.example/dep-test/predict",
		Version:      2,
		Status:       models.StatusTest,
		CreatedAt:    ts(10),
		Shape:        "VM.Standard.E4.Flex",
		OCPUs:        1,
		MemoryGB:     16,
	}
	replaced := v1.Clone()
	replaced.Status = models.StatusReplaced
	replaced.ReplacedAt = tsPtr(20)

	return map[string]*models.DeploymentState{
		"empty": models.NewDeploymentState(),
		"test only": {
			CurrentVersion:    1,
			TestDeployment:    &models.DeploymentRecord{DeploymentID: "dep-a", ModelID: "m-a", Version: 2, Status: models.StatusTest, CreatedAt: ts(1)},
			DeploymentHistory: []*models.DeploymentRecord{},
		},
		"production only": {
			CurrentVersion:       1,
			ProductionDeployment: v1.Clone(),
			DeploymentHistory:    []*models.DeploymentRecord{v1.Clone()},
		},
		"both slots": {
			CurrentVersion:       1,
			ProductionDeployment: v1.Clone(),
			TestDeployment:       v2.Clone(),
			DeploymentHistory:    []*models.DeploymentRecord{v1.Clone(), v2.Clone(), replaced},
		},
	}
}

func TestFileStore_LoadMissingReturnsZeroState(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", DefaultStateFileName))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.CurrentVersion != 0 || state.ProductionDeployment != nil || state.TestDeployment != nil {
		t.Errorf("expected zero state, got %+v", state)
	}
	if state.DeploymentHistory == nil || len(state.DeploymentHistory) != 0 {
		t.Errorf("expected empty non-nil history, got %v", state.DeploymentHistory)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	for name, want := range sampleStates() {
		t.Run(name, func(t *testing.T) {
			store, err := NewFileStore(filepath.Join(t.TempDir(), DefaultStateFileName))
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			ctx := context.Background()

			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got, want)
			}
		})
	}
}

func TestFileStore_CorruptFileFailsLoudly(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "truncated json", content: `{"current_version": 2, "production_deployment": {"deployment_id": "d`},
		{name: "not json", content: "garbage"},
		{name: "invariant broken", content: `{"current_version": 3, "production_deployment": {"deployment_id": "d", "model_id": "m", "version": 2, "status": "PRODUCTION"}, "test_deployment": null, "deployment_history": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultStateFileName)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			store, err := NewFileStore(path)
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}

			_, err = store.Load(context.Background())
			if !errors.Is(err, ErrCorruptState) {
				t.Errorf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}

// legacyState is a state file as earlier releases wrote it: local times
// without a zone offset and the hosting fields recorded at creation.
const legacyState = `{
  "current_version": 1,
  "production_deployment": {
    "deployment_id": "ocid1.datasciencemodeldeployment.prod",
    "model_id": "ocid1.datasciencemodel.v1",
    "endpoint": "https://modeldeployment.example/prod/predict",
    "version": 1,
    "status": "PRODUCTION",
    "created_at": "2025-01-15T10:30:00.123456",
    "shape": "VM.Standard.E4.Flex",
    "ocpus": 1,
    "memory_gb": 16,
    "promoted_at": "2025-01-15T11:02:41.982311"
  },
  "test_deployment": null,
  "deployment_history": [
    {
      "deployment_id": "ocid1.datasciencemodeldeployment.prod",
      "model_id": "ocid1.datasciencemodel.v1",
      "endpoint": "https://modeldeployment.example/prod/predict",
      "version": 1,
      "status": "TEST",
      "created_at": "2025-01-15T10:30:00.123456",
      "shape": "VM.Standard.E4.Flex",
      "ocpus": 1,
      "memory_gb": 16
    }
  ]
}`

func TestFileStore_LoadsZonelessTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultStateFileName)
	if err := os.WriteFile(path, []byte(legacyState), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	state, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prod := state.ProductionDeployment
	if prod == nil || prod.Version != 1 || state.CurrentVersion != 1 {
		t.Fatalf("production not loaded: %+v", state)
	}
	wantCreated := time.Date(2025, 1, 15, 10, 30, 0, 123456000, time.Local)
	if !prod.CreatedAt.Equal(wantCreated) {
		t.Errorf("created_at = %v, want %v", prod.CreatedAt, wantCreated)
	}
	if prod.PromotedAt == nil || prod.PromotedAt.Minute() != 2 {
		t.Errorf("promoted_at not loaded: %v", prod.PromotedAt)
	}
	if len(state.DeploymentHistory) != 1 || state.DeploymentHistory[0].CreatedAt.IsZero() {
		t.Errorf("history not loaded: %+v", state.DeploymentHistory)
	}

	// Saving rewrites the file in RFC3339; it must load back to the same instants.
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if !again.ProductionDeployment.CreatedAt.Equal(wantCreated) {
		t.Errorf("created_at changed after save: %v", again.ProductionDeployment.CreatedAt)
	}
}

func TestFileStore_SaveRejectsInvalidStateAndKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, DefaultStateFileName))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	good := sampleStates()["production only"]
	if err := store.Save(ctx, good); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bad := good.Clone()
	bad.CurrentVersion = 7
	if err := store.Save(ctx, bad); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CurrentVersion != 1 {
		t.Errorf("previous state should survive, got current_version=%d", got.CurrentVersion)
	}

	// No temp files may be left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the state file, found %v", names)
	}
}

func TestFileStore_PersistedFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultStateFileName)
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save(context.Background(), models.NewDeploymentState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, field := range []string{`"current_version": 0`, `"production_deployment": null`, `"test_deployment": null`, `"deployment_history": []`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("state file missing %s:\n%s", field, data)
		}
	}
}

func TestFileStore_Closed(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), DefaultStateFileName))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load after close: expected ErrStoreClosed, got %v", err)
	}
	if err := store.Save(context.Background(), models.NewDeploymentState()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save after close: expected ErrStoreClosed, got %v", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(Options{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpen_DefaultsToFile(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Options{BackupRoot: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs, ok := store.(*FileStore)
	if !ok {
		t.Fatalf("expected *FileStore, got %T", store)
	}
	if fs.Path() != filepath.Join(dir, DefaultStateFileName) {
		t.Errorf("unexpected path %s", fs.Path())
	}
}
