package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/pgsd/internal/config"
	"github.com/zsiec/pgsd/internal/events"
	"github.com/zsiec/pgsd/internal/ingest"
	srtingest "github.com/zsiec/pgsd/internal/ingest/srt"
	"github.com/zsiec/pgsd/internal/output"
	"github.com/zsiec/pgsd/internal/pipeline"
	"github.com/zsiec/pgsd/internal/stream"
)

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "YAML configuration file")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := config.Load(*cfgPath, os.Getenv)
	if err != nil {
		return err
	}
	if cfg.Debug || *verbose {
		setupLogging(stderr, true)
	}
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	a := &app{
		cfg:    cfg,
		mgr:    stream.NewManager(nil),
		writer: &output.Writer{Dir: cfg.Output.Dir, Format: format, Scale: cfg.Output.Scale},
		pub:    events.Nop{},
	}
	if cfg.MQTT.Broker != "" {
		m := events.NewMQTT(events.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, nil)
		if err := m.Connect(ctx); err != nil {
			// The client keeps retrying in the background.
			slog.Warn("mqtt not reachable yet", "broker", cfg.MQTT.Broker, "error", err)
		}
		a.pub = m
	}
	defer a.pub.Close()

	slog.Info("pgsd starting", "version", version, "srt", cfg.SRT.Addr, "output", cfg.Output.Dir,
		"format", format, "mqtt", cfg.MQTT.Broker)

	g, ctx := errgroup.WithContext(ctx)

	// The registry and caller are created after the errgroup so sessions
	// stop when any component fails.
	a.registry = ingest.NewRegistry(func(s *ingest.Session, in io.Reader) {
		a.handleSession(ctx, s, in)
	})
	caller := srtingest.NewCaller(a.registry, nil)
	srv := srtingest.NewServer(cfg.SRT.Addr, a.registry, nil)

	g.Go(func() error {
		return srv.Start(ctx)
	})
	for _, p := range cfg.SRT.Pulls {
		g.Go(func() error {
			req := srtingest.PullRequest{Address: p.Address, StreamKey: p.StreamKey, StreamID: p.StreamID}
			if err := caller.Pull(ctx, req); err != nil {
				slog.Error("srt pull failed", "address", p.Address, "stream_key", p.StreamKey, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

type app struct {
	cfg      *config.Config
	mgr      *stream.Manager
	registry *ingest.Registry
	writer   *output.Writer
	pub      events.Publisher
}

func (a *app) handleSession(ctx context.Context, s *ingest.Session, in io.Reader) {
	st, ok := a.mgr.Create(s.Key, s.ID)
	if !ok {
		// Drain so the SRT reader is not blocked on the pipe.
		_, _ = io.Copy(io.Discard, in)
		return
	}
	defer a.mgr.Remove(s.Key)

	p := pipeline.New(pipeline.Config{
		Key:       s.Key,
		Session:   s.ID,
		Sink:      a.writer,
		Publisher: a.pub,
		Counters:  st,
		KeepEmpty: a.cfg.Output.KeepEmpty(),
	}, in)
	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline error", "stream", s.Key, "session", s.ID, "error", err)
		// Unblock the SRT side, which may still be writing.
		_, _ = io.Copy(io.Discard, in)
	}
}
