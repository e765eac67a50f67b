package eventsource

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrConcurrencyConflict is returned by Append when the expected version
// does not match the stream's current version.
var ErrConcurrencyConflict = errors.New("eventsource: concurrency conflict")

// Store is an append-only event store with per-stream versioning.
type Store interface {
	// Append adds events to a stream. expectedVersion is the version of
	// the last event already in the stream, or -1 for a new stream.
	// Returns the version of the last appended event.
	Append(ctx context.Context, stream string, expectedVersion int, events []*Event) (int, error)

	// Read returns events from a stream starting at fromVersion.
	Read(ctx context.Context, stream string, fromVersion int) ([]*Event, error)

	// StreamVersion returns the version of the last event in a stream,
	// or -1 if the stream does not exist.
	StreamVersion(ctx context.Context, stream string) (int, error)

	// Streams returns all stream identifiers, sorted.
	Streams(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]*Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]*Event),
	}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, stream string, expectedVersion int, events []*Event) (int, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := len(s.streams[stream]) - 1
	if expectedVersion != current {
		return current, ErrConcurrencyConflict
	}

	version := current
	for _, e := range events {
		version++
		stored := *e
		stored.Stream = stream
		stored.Version = version
		s.streams[stream] = append(s.streams[stream], &stored)
	}
	return version, nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, stream string, fromVersion int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.streams[stream]
	if fromVersion < 0 {
		fromVersion = 0
	}
	if fromVersion >= len(events) {
		return nil, nil
	}

	out := make([]*Event, 0, len(events)-fromVersion)
	for _, e := range events[fromVersion:] {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// StreamVersion implements Store.
func (s *MemoryStore) StreamVersion(ctx context.Context, stream string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[stream]) - 1, nil
}

// Streams implements Store.
func (s *MemoryStore) Streams(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.streams))
	for stream := range s.streams {
		out = append(out, stream)
	}
	sort.Strings(out)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
