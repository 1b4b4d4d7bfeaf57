// Package stream tracks live streams and their decode counters.
package stream

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Counters are the per-stream decode statistics.
type Counters struct {
	DisplaySets    int64
	FramesWritten  int64
	EmptySets      int64
	RenderFailures int64
	ProtocolErrors int64
}

// Stream is one live stream. The counter methods are safe for concurrent
// use.
type Stream struct {
	Key       string
	Session   uuid.UUID
	StartedAt time.Time
	done      chan struct{}

	displaySets    atomic.Int64
	framesWritten  atomic.Int64
	emptySets      atomic.Int64
	renderFailures atomic.Int64
	protocolErrors atomic.Int64
}

func (s *Stream) DisplaySet()           { s.displaySets.Add(1) }
func (s *Stream) FrameWritten()         { s.framesWritten.Add(1) }
func (s *Stream) EmptySet()             { s.emptySets.Add(1) }
func (s *Stream) RenderFailure()        { s.renderFailures.Add(1) }
func (s *Stream) ProtocolError()        { s.protocolErrors.Add(1) }
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Counters() Counters {
	return Counters{
		DisplaySets:    s.displaySets.Load(),
		FramesWritten:  s.framesWritten.Load(),
		EmptySets:      s.emptySets.Load(),
		RenderFailures: s.renderFailures.Load(),
		ProtocolErrors: s.protocolErrors.Load(),
	}
}

// Manager holds the live streams by key.
type Manager struct {
	log     *slog.Logger
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewManager creates a Manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log.With("component", "stream-manager"),
		streams: make(map[string]*Stream),
	}
}

// Create registers a stream for an ingest session. It returns false if the
// key is already live.
func (m *Manager) Create(key string, session uuid.UUID) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		m.log.Warn("stream already exists, rejecting duplicate", "key", key)
		return nil, false
	}
	s := &Stream{
		Key:       key,
		Session:   session,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	m.streams[key] = s
	m.log.Info("stream created", "key", key, "session", session)
	return s, true
}

// Remove drops the stream and logs its final counters.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(s.done)
	c := s.Counters()
	m.log.Info("stream removed", "key", key, "session", s.Session,
		"duration", time.Since(s.StartedAt).Round(time.Millisecond),
		"display_sets", c.DisplaySets, "frames", c.FramesWritten, "empty", c.EmptySets,
		"render_failures", c.RenderFailures, "protocol_errors", c.ProtocolErrors)
}

func (m *Manager) Get(key string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[key]
	return s, ok
}

// List returns the live streams ordered by key.
func (m *Manager) List() []*Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.SortedFunc(maps.Values(m.streams), func(a, b *Stream) int {
		return strings.Compare(a.Key, b.Key)
	})
}
