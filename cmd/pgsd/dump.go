package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/zsiec/pgsd/internal/input"
	"github.com/zsiec/pgsd/pgs"
)

func dump(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pid := fs.Uint("pid", 0, "PGS PID to dump from transport stream input (0 = all)")
	segments := fs.Bool("segments", true, "print every segment")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: pgsd dump [flags] <input>")
		return errUsage
	}

	tracks, err := input.Load(ctx, fs.Arg(0), input.Options{PID: uint16(*pid)})
	if err != nil {
		return err
	}
	for _, t := range tracks {
		fmt.Fprintf(stdout, "track pid=%d language=%q bytes=%d\n", t.PID, t.Language, len(t.Data))
		segs, err := pgs.Parse(t.Data)
		if err != nil {
			return err
		}
		if *segments {
			for i, seg := range segs {
				fmt.Fprintf(stdout, "  segment %d: %s\n", i, seg)
			}
		}
		n := 0
		for ds, err := range pgs.DisplaySets(segs) {
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "  display set %d: pts=%s %dx%d %s objects=%d\n",
				n, ds.PresentationTime(), ds.Width(), ds.Height(),
				ds.Composition.CompositionState, len(ds.Placements()))
			for _, co := range ds.Placements() {
				fmt.Fprintf(stdout, "    %s\n", co)
			}
			n++
		}
	}
	return nil
}
