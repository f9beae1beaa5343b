// Recdeploy - Recommender Model Deployment Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recdeploy

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// timestampLayouts are tried in order when decoding. State files and backup
// metadata written by earlier releases carry local times without a zone
// offset, e.g. "2025-01-15T10:30:00.123456".
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an RFC3339 time or a zone-less ISO 8601 time. Times
// without an offset are read in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// splitTimestamps removes keys from the JSON object in data and returns
// their parsed values along with the remaining object. Null and empty values
// are left out of the result.
func splitTimestamps(data []byte, keys ...string) (map[string]time.Time, []byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	times := make(map[string]time.Time, len(keys))
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		delete(raw, key)

		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		if s == nil || *s == "" {
			continue
		}
		t, err := ParseTimestamp(*s)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		times[key] = t
	}

	rest, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, err
	}
	return times, rest, nil
}

func optionalTime(times map[string]time.Time, key string) *time.Time {
	t, ok := times[key]
	if !ok {
		return nil
	}
	return &t
}

// UnmarshalJSON accepts the timestamp forms understood by ParseTimestamp.
func (r *DeploymentRecord) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	times, rest, err := splitTimestamps(data, "created_at", "promoted_at", "replaced_at", "repaired_at")
	if err != nil {
		return err
	}

	type plain DeploymentRecord
	if err := json.Unmarshal(rest, (*plain)(r)); err != nil {
		return err
	}
	r.CreatedAt = times["created_at"]
	r.PromotedAt = optionalTime(times, "promoted_at")
	r.ReplacedAt = optionalTime(times, "replaced_at")
	r.RepairedAt = optionalTime(times, "repaired_at")
	return nil
}

// UnmarshalJSON accepts the timestamp forms understood by ParseTimestamp.
func (m *BackupMetadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	times, rest, err := splitTimestamps(data, "backup_date")
	if err != nil {
		return err
	}

	type plain BackupMetadata
	if err := json.Unmarshal(rest, (*plain)(m)); err != nil {
		return err
	}
	m.BackupDate = times["backup_date"]
	return nil
}
