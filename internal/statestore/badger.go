// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package statestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/recdeploy/internal/logging"
	"github.com/tomtom215/recdeploy/internal/models"
)

// Key layout
const (
	keyCurrent     = "state:current"
	keyRevisionSeq = "state:revision_seq"
	prefixRevision = "revision:"
	revisionKeyFmt = prefixRevision + "%020d"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the BadgerDB directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the database in memory (tests only).
	InMemory bool

	// SyncWrites fsyncs every transaction. Should stay enabled outside tests.
	SyncWrites bool
}

// Revision is a previously saved state kept in the journal.
type Revision struct {
	Seq     uint64                  `json:"seq"`
	SavedAt time.Time               `json:"saved_at"`
	State   *models.DeploymentState `json:"state"`
}

// BadgerStore keeps the current state under one key and appends every saved
// state to a revision journal inside the same transaction.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a BadgerDB-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("badger state directory is required")
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.SyncWrites = cfg.SyncWrites

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("dir", cfg.Dir).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Badger state store opened")

	return &BadgerStore{db: db, now: time.Now}, nil
}

// Load returns the current state, or the zero state if nothing was saved yet.
func (s *BadgerStore) Load(_ context.Context) (*models.DeploymentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyCurrent))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.NewDeploymentState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state from BadgerDB: %w", err)
	}

	return decodeState(data, keyCurrent)
}

// Save writes the current-state key and a new revision in one transaction.
func (s *BadgerStore) Save(_ context.Context, state *models.DeploymentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	data, err := encodeState(state)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}

		rev, err := json.Marshal(&Revision{Seq: seq, SavedAt: s.now().UTC(), State: state})
		if err != nil {
			return fmt.Errorf("marshal revision: %w", err)
		}

		if err := txn.Set([]byte(fmt.Sprintf(revisionKeyFmt, seq)), rev); err != nil {
			return err
		}
		return txn.Set([]byte(keyCurrent), data)
	})
	if err != nil {
		return fmt.Errorf("write state to BadgerDB: %w", err)
	}
	return nil
}

// nextSeq increments the revision counter inside txn.
func nextSeq(txn *badger.Txn) (uint64, error) {
	var seq uint64
	item, err := txn.Get([]byte(keyRevisionSeq))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: malformed revision counter", ErrCorruptState)
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	}

	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Set([]byte(keyRevisionSeq), buf); err != nil {
		return 0, err
	}
	return seq, nil
}

// Revisions returns saved states, oldest first. limit <= 0 returns all.
func (s *BadgerStore) Revisions(limit int) ([]*Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	revs := make([]*Revision, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRevision)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !strings.HasPrefix(string(item.Key()), prefixRevision) {
				continue
			}
			var rev Revision
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rev)
			}); err != nil {
				return fmt.Errorf("decode revision %s: %w", item.Key(), err)
			}
			revs = append(revs, &rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(revs) > limit {
		revs = revs[len(revs)-limit:]
	}
	return revs, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}
