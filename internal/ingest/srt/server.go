package srt

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/pgsd/internal/ingest"
)

// readBufferSize holds ten standard SRT payloads of 7 TS packets each.
const readBufferSize = 1316 * 10

// latency is the SRT receive latency in nanoseconds.
const latency = 120_000_000

// Server accepts SRT publishers and opens an ingest session for each.
type Server struct {
	log      *slog.Logger
	addr     string
	registry *ingest.Registry
}

// NewServer creates a Server listening on addr. If log is nil,
// slog.Default() is used.
func NewServer(addr string, registry *ingest.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "srt-server"),
		addr:     addr,
		registry: registry,
	}
}

// Start accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latency

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return errors.Wrapf(err, "srt: listen on %s", s.addr)
	}
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		if _, busy := s.registry.Get(streamKey(req.StreamID)); busy {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept error", "error", err)
			continue
		}
		go s.serve(ctx, conn, streamKey(conn.StreamID()))
	}
}

func (s *Server) serve(ctx context.Context, conn *srtgo.Conn, key string) {
	defer conn.Close()

	session, err := s.registry.Register(key)
	if err != nil {
		s.log.Warn("rejecting publisher", "stream_key", key, "error", err)
		return
	}
	session.SetRemoteAddr(conn.RemoteAddr().String())
	s.log.Info("publish", "stream_key", key, "session", session.ID, "remote", conn.RemoteAddr())

	copyInto(ctx, s.log, conn, session)

	stats := session.Stats()
	s.registry.Unregister(key)
	s.log.Info("connection closed", "stream_key", key, "session", session.ID,
		"bytes", stats.BytesReceived, "reads", stats.Reads, "uptime", stats.Uptime)
}

// copyInto pumps src into the session until EOF, a read error or ctx ends.
func copyInto(ctx context.Context, log *slog.Logger, src io.Reader, session *ingest.Session) {
	buf := make([]byte, readBufferSize)
	for ctx.Err() == nil {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := session.Write(buf[:n]); werr != nil {
				log.Debug("pipe write error", "stream_key", session.Key, "error", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read error", "stream_key", session.Key, "error", err)
			}
			return
		}
	}
}

// streamKey maps an SRT stream id such as "/live/movie" to "movie".
func streamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
