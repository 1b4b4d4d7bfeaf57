// Package input loads PGS streams from disk: raw .sup files, MPEG-TS and
// Blu-ray M2TS, optionally zstd or gzip compressed.
package input

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/zsiec/pgsd/internal/mpegts"
	"github.com/zsiec/pgsd/internal/tsextract"
)

// ErrUnknownFormat is returned when the data is neither a .sup stream nor a
// transport stream.
var ErrUnknownFormat = errors.New("input: unrecognized container")

// Track is one PGS stream. PID is 0 for raw .sup input.
type Track = tsextract.Track

// Container is the detected layout of the (decompressed) input.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerSUP
	ContainerTS
	ContainerM2TS
)

func (c Container) String() string {
	switch c {
	case ContainerSUP:
		return "sup"
	case ContainerTS:
		return "mpegts"
	case ContainerM2TS:
		return "m2ts"
	default:
		return "unknown"
	}
}

// PacketSize is the transport packet size of TS containers, 0 otherwise.
func (c Container) PacketSize() int {
	switch c {
	case ContainerTS:
		return mpegts.PacketSize
	case ContainerM2TS:
		return mpegts.M2TSPacketSize
	}
	return 0
}

// Compression is the outer compression layer, if any.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionGzip
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic = []byte{0x1F, 0x8B}
)

// Options tunes loading.
type Options struct {
	// PID selects one PGS stream in transport stream input. Zero keeps all.
	PID uint16
	// Log receives extraction warnings. If nil, slog.Default() is used.
	Log *slog.Logger
}

// Load reads the file at path and returns its PGS tracks.
func Load(ctx context.Context, path string, opts Options) ([]Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "input: read")
	}
	tracks, err := Decode(ctx, data, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "input: %s", path)
	}
	return tracks, nil
}

// Decode decompresses data if needed, detects the container and returns
// its PGS tracks.
func Decode(ctx context.Context, data []byte, opts Options) ([]Track, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "input")

	data, comp, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	container := Detect(data)
	log.Debug("loaded input", "compression", comp, "container", container, "bytes", len(data))

	switch container {
	case ContainerSUP:
		return []Track{{Data: data}}, nil
	case ContainerTS, ContainerM2TS:
		e := tsextract.New(ctx, bytes.NewReader(data),
			tsextract.WithPID(opts.PID),
			tsextract.WithPacketSize(container.PacketSize()),
			tsextract.WithLogger(log),
		)
		return e.Extract()
	default:
		if len(data) == 0 {
			return nil, errors.Wrap(ErrUnknownFormat, "empty input")
		}
		return nil, errors.Wrapf(ErrUnknownFormat, "starts with % X", data[:min(len(data), 4)])
	}
}

// Decompress strips a zstd or gzip layer identified by its magic bytes.
// Other data is returned unchanged.
func Decompress(data []byte) ([]byte, Compression, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, CompressionZstd, errors.Wrap(err, "input: zstd")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, CompressionZstd, errors.Wrap(err, "input: zstd")
		}
		return out, CompressionZstd, nil
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, CompressionGzip, errors.Wrap(err, "input: gzip")
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, CompressionGzip, errors.Wrap(err, "input: gzip")
		}
		return out, CompressionGzip, nil
	default:
		return data, CompressionNone, nil
	}
}

// Detect identifies the container from its first bytes.
func Detect(data []byte) Container {
	if bytes.HasPrefix(data, []byte("PG")) {
		return ContainerSUP
	}
	switch mpegts.DetectPacketSize(data) {
	case mpegts.PacketSize:
		return ContainerTS
	case mpegts.M2TSPacketSize:
		return ContainerM2TS
	}
	return ContainerUnknown
}
