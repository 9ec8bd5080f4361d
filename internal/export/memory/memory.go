// Package memory is an in-process snapshot sink for tests and local
// development.
package memory

import (
	"context"
	"errors"
	"sync"

	"finsight/internal/analytics"
	"finsight/internal/export"
)

var _ export.SnapshotWriter = (*Store)(nil)

type Store struct {
	mu        sync.Mutex
	snapshots map[string]*analytics.Snapshot
	exports   int
}

func New() *Store {
	return &Store{snapshots: make(map[string]*analytics.Snapshot)}
}

// ExportSnapshot keeps the latest snapshot per user.
func (s *Store) ExportSnapshot(_ context.Context, userID string, snapshot *analytics.Snapshot) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	if snapshot == nil {
		return errors.New("nil snapshot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[userID] = snapshot
	s.exports++
	return nil
}

// Snapshot returns the last exported snapshot for a user, if any.
func (s *Store) Snapshot(userID string) (*analytics.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[userID]
	return snapshot, ok
}

// Exports reports how many snapshots have been delivered in total.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
