package srt

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/pgsd/internal/ingest"
)

const dialTimeout = 10 * time.Second

var (
	ErrPullActive = errors.New("srt: pull already active")
	ErrNoPull     = errors.New("srt: no active pull")
)

// PullRequest names a remote SRT listener to read from.
type PullRequest struct {
	Address   string `yaml:"address"`
	StreamKey string `yaml:"stream_key"`
	StreamID  string `yaml:"stream_id,omitempty"` // defaults to "live/<StreamKey>"
}

func (r PullRequest) validate() error {
	if r.Address == "" {
		return errors.New("srt: pull address is required")
	}
	if r.StreamKey == "" {
		return errors.New("srt: pull stream key is required")
	}
	return nil
}

type pull struct {
	req    PullRequest
	cancel context.CancelFunc
}

// Caller dials remote SRT sources and feeds them into the ingest registry.
type Caller struct {
	log      *slog.Logger
	registry *ingest.Registry

	mu    sync.Mutex
	pulls map[string]*pull
}

// NewCaller creates a Caller. If log is nil, slog.Default() is used.
func NewCaller(registry *ingest.Registry, log *slog.Logger) *Caller {
	if log == nil {
		log = slog.Default()
	}
	return &Caller{
		log:      log.With("component", "srt-caller"),
		registry: registry,
		pulls:    make(map[string]*pull),
	}
}

func (c *Caller) active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pulls[key]
	return ok
}

// Pull dials req.Address, waiting at most dialTimeout. Once connected the
// stream is read on a background goroutine until ctx ends or the remote
// closes.
func (c *Caller) Pull(ctx context.Context, req PullRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	if c.active(req.StreamKey) {
		return errors.Wrapf(ErrPullActive, "%q", req.StreamKey)
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latency
	cfg.StreamID = req.StreamID
	if cfg.StreamID == "" {
		cfg.StreamID = "live/" + req.StreamKey
	}
	c.log.Info("dialing", "address", req.Address, "stream_key", req.StreamKey)

	type dialed struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialed, 1)
	go func() {
		conn, err := srtgo.Dial(req.Address, cfg)
		ch <- dialed{conn, err}
	}()
	abandon := func() {
		go func() {
			if d := <-ch; d.conn != nil {
				d.conn.Close()
			}
		}()
	}

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()
	select {
	case d := <-ch:
		if d.err != nil {
			return errors.Wrapf(d.err, "srt: dial %s", req.Address)
		}
		return c.start(ctx, req, d.conn)
	case <-timer.C:
		abandon()
		return errors.Newf("srt: dial %s timed out after %s", req.Address, dialTimeout)
	case <-ctx.Done():
		abandon()
		return ctx.Err()
	}
}

func (c *Caller) start(ctx context.Context, req PullRequest, conn *srtgo.Conn) error {
	session, err := c.registry.Register(req.StreamKey)
	if err != nil {
		conn.Close()
		return err
	}
	pullCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if _, ok := c.pulls[req.StreamKey]; ok {
		c.mu.Unlock()
		cancel()
		conn.Close()
		c.registry.Unregister(req.StreamKey)
		return errors.Wrapf(ErrPullActive, "%q", req.StreamKey)
	}
	c.pulls[req.StreamKey] = &pull{req: req, cancel: cancel}
	c.mu.Unlock()

	session.SetRemoteAddr(req.Address)
	c.log.Info("connected", "address", req.Address, "stream_key", req.StreamKey, "session", session.ID)

	go func() {
		// Closing the connection unblocks a pending Read on cancel.
		closeConn := sync.OnceFunc(func() { conn.Close() })
		stop := context.AfterFunc(pullCtx, closeConn)
		defer stop()

		copyInto(pullCtx, c.log, conn, session)

		closeConn()
		stats := session.Stats()
		c.registry.Unregister(req.StreamKey)
		c.mu.Lock()
		delete(c.pulls, req.StreamKey)
		c.mu.Unlock()
		cancel()
		c.log.Info("pull ended", "stream_key", req.StreamKey, "session", session.ID,
			"bytes", stats.BytesReceived, "reads", stats.Reads, "uptime", stats.Uptime)
	}()
	return nil
}

// Stop cancels the pull for streamKey.
func (c *Caller) Stop(streamKey string) error {
	c.mu.Lock()
	p, ok := c.pulls[streamKey]
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNoPull, "%q", streamKey)
	}
	p.cancel()
	return nil
}

// ActivePulls lists the running pulls ordered by stream key.
func (c *Caller) ActivePulls() []PullRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PullRequest, 0, len(c.pulls))
	for _, p := range c.pulls {
		out = append(out, p.req)
	}
	slices.SortFunc(out, func(a, b PullRequest) int { return strings.Compare(a.StreamKey, b.StreamKey) })
	return out
}
