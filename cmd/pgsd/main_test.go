package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zsiec/pgsd/internal/pgstest"
)

func writeSup(t *testing.T, dir string) string {
	t.Helper()
	var s pgstest.Stream
	s.At(90000, 0)
	s.PCS(pgstest.Composition{Width: 4, Height: 2, State: pgstest.EpochStart, Objects: []pgstest.Object{{ID: 1}}})
	s.WDS(pgstest.Window{Width: 4, Height: 2})
	s.PDS(0, 0, pgstest.Entry{ID: 1, Y: 235, Cr: 128, Cb: 128, A: 255})
	s.ODS(1, 0, 0xC0, 4, 2, pgstest.Fill(4, 2, 1))
	s.END()
	s.At(180000, 0)
	s.PCS(pgstest.Composition{Width: 4, Height: 2, Number: 1})
	s.END()

	path := filepath.Join(dir, "movie.sup")
	if err := os.WriteFile(path, s.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	in := writeSup(t, dir)
	out := filepath.Join(dir, "frames")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"decode", "-o", out, "-format", "qoi", in}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "movie_00000_1000.qoi" {
		t.Errorf("output files = %v", entries)
	}
}

func TestDecode_KeepEmpty(t *testing.T) {
	dir := t.TempDir()
	in := writeSup(t, dir)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"decode", "-o", dir, "-skip-empty=false", in}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "movie_*.png"))
	if len(matches) != 2 {
		t.Errorf("wrote %v, want 2 frames", matches)
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	in := writeSup(t, dir)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"dump", in}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"track pid=0", "segment 6:", "display set 0: pts=1s 4x2", "display set 1: pts=2s"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.sup")
	if err := os.WriteFile(bad, []byte("PGxx"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		args  []string
		usage bool
	}{
		{"no command", nil, true},
		{"unknown command", []string{"frobnicate"}, true},
		{"decode without input", []string{"decode"}, true},
		{"bad flag", []string{"decode", "-nope", "x"}, true},
		{"bad format", []string{"decode", "-format", "gif", bad}, false},
		{"missing file", []string{"decode", filepath.Join(dir, "none.sup")}, false},
		{"truncated sup", []string{"decode", "-o", dir, bad}, false},
		{"dump truncated", []string{"dump", bad}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("run succeeded")
			}
			if errors.Is(err, errUsage) != tt.usage {
				t.Errorf("err = %v, usage error expected %v", err, tt.usage)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"version"}, &stdout, &stdout); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout.String(), "pgsd ") {
		t.Errorf("version output = %q", stdout.String())
	}
}
