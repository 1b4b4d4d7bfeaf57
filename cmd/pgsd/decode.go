package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/zsiec/pgsd/internal/input"
	"github.com/zsiec/pgsd/internal/output"
	"github.com/zsiec/pgsd/pgs"
	"github.com/zsiec/pgsd/render"
)

type decodeStats struct {
	sets, written, skipped, failed int
}

func decode(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("o", ".", "output directory")
	format := fs.String("format", "png", "image format: png or qoi")
	scale := fs.Float64("scale", 1, "scale factor applied to every frame")
	workers := fs.Int("workers", runtime.GOMAXPROCS(0), "parallel renderers")
	skipEmpty := fs.Bool("skip-empty", true, "skip display sets without composition objects")
	preview := fs.Bool("preview", false, "print each frame to stdout as sixel")
	pid := fs.Uint("pid", 0, "PGS PID to decode from transport stream input (0 = all)")
	checkWindows := fs.Bool("check-windows", false, "fail display sets that reference undefined windows")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: pgsd decode [flags] <input>")
		return errUsage
	}
	if *verbose {
		setupLogging(stderr, true)
	}
	if *pid > 0x1FFF {
		return errors.Newf("pid %d out of range", *pid)
	}
	imgFormat, err := output.ParseFormat(*format)
	if err != nil {
		return err
	}
	if *scale < 0 {
		return errors.Newf("scale %v is negative", *scale)
	}

	path := fs.Arg(0)
	tracks, err := input.Load(ctx, path, input.Options{PID: uint16(*pid)})
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return errors.Newf("%s: no PGS streams found", path)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	w := &output.Writer{Dir: *outDir, Format: imgFormat, Scale: *scale}
	if *preview {
		w.Preview = stdout
	}
	opts := render.Options{CheckWindows: *checkWindows}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, ".sup")

	var total decodeStats
	for _, t := range tracks {
		prefix := base
		if t.PID != 0 {
			prefix = fmt.Sprintf("%s_%d", base, t.PID)
		}
		log := slog.With("pid", t.PID, "language", t.Language)
		st, err := decodeTrack(ctx, log, t.Data, prefix, w, opts, *workers, *skipEmpty)
		if err != nil {
			return errors.Wrapf(err, "pid %d", t.PID)
		}
		total.sets += st.sets
		total.written += st.written
		total.skipped += st.skipped
		total.failed += st.failed
	}

	slog.Info("decode finished", "input", path, "tracks", len(tracks), "display_sets", total.sets,
		"written", total.written, "skipped", total.skipped, "render_failures", total.failed)
	return nil
}

// decodeTrack renders one .sup stream. Parse and protocol errors are fatal;
// render and write failures are logged and counted.
func decodeTrack(ctx context.Context, log *slog.Logger, data []byte, prefix string,
	w *output.Writer, opts render.Options, workers int, skipEmpty bool) (decodeStats, error) {
	var st decodeStats

	segs, err := pgs.Parse(data)
	if err != nil {
		return st, err
	}
	var sets []*pgs.DisplaySet
	var indexes []int
	for ds, err := range pgs.DisplaySets(segs) {
		if err != nil {
			return st, err
		}
		idx := st.sets
		st.sets++
		if skipEmpty && ds.Empty() {
			st.skipped++
			continue
		}
		sets = append(sets, ds)
		indexes = append(indexes, idx)
	}
	log.Debug("assembled track", "segments", len(segs), "display_sets", st.sets, "to_render", len(sets))

	results, err := opts.RenderAll(ctx, sets, workers)
	if err != nil {
		return st, err
	}
	for i, r := range results {
		if r.Err != nil {
			st.failed++
			log.Warn("render failed", "index", indexes[i], "pts", r.Set.PTS, "error", r.Err)
			continue
		}
		file, err := w.Write(prefix, indexes[i], r.Frame)
		if err != nil {
			st.failed++
			log.Warn("write failed", "index", indexes[i], "error", err)
			continue
		}
		st.written++
		log.Debug("frame written", "index", indexes[i], "pts", r.Set.PTS, "file", file)
	}
	return st, nil
}
