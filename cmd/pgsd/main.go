// Command pgsd decodes Blu-ray PGS subtitles into images.
//
//	pgsd decode [flags] <input>   render every display set to PNG or QOI
//	pgsd dump <input>             print segments and display sets
//	pgsd serve [-config file]     decode live SRT transport streams
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
)

var version = "dev"

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			slog.Error("pgsd failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	setupLogging(stderr, os.Getenv("DEBUG") != "")
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	switch args[0] {
	case "decode":
		return decode(ctx, args[1:], stdout, stderr)
	case "dump":
		return dump(ctx, args[1:], stdout, stderr)
	case "serve":
		return serve(ctx, args[1:], stderr)
	case "version":
		fmt.Fprintln(stdout, "pgsd", version)
		return nil
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "pgsd: unknown command %q\n", args[0])
		usage(stderr)
		return errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  pgsd decode [flags] <input>   render display sets to images
  pgsd dump <input>             print segments and display sets
  pgsd serve [-config file]     decode live SRT ingest
  pgsd version

Input may be a .sup file, an MPEG-TS or M2TS file, optionally zstd or gzip
compressed. Run "pgsd <command> -h" for flags.
`)
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
