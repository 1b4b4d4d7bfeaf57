// Package ingest tracks live transport stream sessions. The SRT layer writes
// received bytes into a session's pipe; the pipeline reads the other end.
package ingest

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrDuplicateKey is returned by Register when the key is already live.
var ErrDuplicateKey = errors.New("ingest: stream key already active")

// Stats is a snapshot of a session's connection counters.
type Stats struct {
	BytesReceived int64
	Reads         int64
	Uptime        time.Duration
	RemoteAddr    string
}

// Session is one live ingest connection. Each connection gets a fresh ID
// even when it reuses a stream key.
type Session struct {
	ID        uuid.UUID
	Key       string
	StartedAt time.Time

	pw   *io.PipeWriter
	done chan struct{}

	bytesReceived atomic.Int64
	reads         atomic.Int64
	remoteAddr    atomic.Value
}

// Write forwards received bytes to the session's reader and counts them.
func (s *Session) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	s.bytesReceived.Add(int64(n))
	s.reads.Add(1)
	return n, err
}

func (s *Session) SetRemoteAddr(addr string) { s.remoteAddr.Store(addr) }

// Done is closed when the session is unregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		Reads:         s.reads.Load(),
		Uptime:        time.Since(s.StartedAt),
		RemoteAddr:    addr,
	}
}

// Handler receives every new session with the reader side of its pipe. It
// runs on its own goroutine and should read until EOF.
type Handler func(s *Session, input io.Reader)

// Registry holds the live sessions by stream key.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	onSession Handler
}

// NewRegistry creates a Registry. h may be nil.
func NewRegistry(h Handler) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		onSession: h,
	}
}

// Register opens a session for key and starts the handler for it.
func (r *Registry) Register(key string) (*Session, error) {
	pr, pw := io.Pipe()
	s := &Session{
		ID:        uuid.New(),
		Key:       key,
		StartedAt: time.Now(),
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return nil, errors.Wrapf(ErrDuplicateKey, "%q", key)
	}
	r.sessions[key] = s
	r.mu.Unlock()

	if r.onSession != nil {
		go r.onSession(s, pr)
	}
	return s, nil
}

// Unregister ends the session for key, closing its pipe so the reader sees
// EOF. Unknown keys are ignored.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if ok {
		s.pw.Close()
		close(s.done)
	}
}

func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
