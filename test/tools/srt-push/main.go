// Command srt-push streams a transport stream file to pgsd serve over SRT,
// paced to the stream's own timestamps.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	srt "github.com/zsiec/srtgo"

	"github.com/zsiec/pgsd/internal/input"
	"github.com/zsiec/pgsd/internal/mpegts"
)

// chunkSize is one standard SRT payload of 7 TS packets.
const chunkSize = mpegts.PacketSize * 7

func main() {
	addr := flag.String("addr", "127.0.0.1:6000", "SRT listener address")
	key := flag.String("key", "", "stream key (default: file name without extension)")
	duration := flag.Duration("duration", 0, "playback duration (default: PES timestamp span)")
	loop := flag.Bool("loop", false, "restart from the beginning at the end of the file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: srt-push [-addr host:port] [-key name] [-loop] <file.ts|file.m2ts>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "srt-push: %v\n", err)
		os.Exit(1)
	}
	d := *duration
	if d <= 0 {
		d = span(ctx, data)
	}
	if d <= 0 {
		d = time.Minute
	}

	streamID := *key
	if streamID == "" {
		base := filepath.Base(path)
		streamID = strings.SplitN(base, ".", 2)[0]
	}
	streamID = "live/" + streamID

	rate := float64(len(data)) / d.Seconds()
	fmt.Printf("%s: %d packets over %s (%.0f B/s) -> %s %s\n",
		path, len(data)/mpegts.PacketSize, d, rate, *addr, streamID)

	for ctx.Err() == nil {
		cfg := srt.DefaultConfig()
		cfg.StreamID = streamID
		conn, err := srt.Dial(*addr, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect %s: %v, retrying\n", *addr, err)
			sleep(ctx, time.Second)
			continue
		}
		err = push(ctx, conn, data, rate, *loop)
		conn.Close()
		if err == nil || ctx.Err() != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "connection lost: %v, reconnecting\n", err)
		sleep(ctx, time.Second)
	}
}

// load reads a possibly compressed TS or M2TS file and returns plain
// 188-byte packets.
func load(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, _, err := input.Decompress(raw)
	if err != nil {
		return nil, err
	}
	switch c := input.Detect(data); c {
	case input.ContainerTS:
		return data[:len(data)-len(data)%mpegts.PacketSize], nil
	case input.ContainerM2TS:
		return stripM2TS(data), nil
	default:
		return nil, errors.Newf("%s: not a transport stream (%s)", path, c)
	}
}

// stripM2TS drops the 4-byte arrival timestamp in front of every packet.
func stripM2TS(data []byte) []byte {
	out := make([]byte, 0, len(data)/mpegts.M2TSPacketSize*mpegts.PacketSize)
	for off := 0; off+mpegts.M2TSPacketSize <= len(data); off += mpegts.M2TSPacketSize {
		out = append(out, data[off+4:off+mpegts.M2TSPacketSize]...)
	}
	return out
}

// span returns the distance between the first and last PES timestamps.
func span(ctx context.Context, data []byte) time.Duration {
	dmx := mpegts.NewDemuxer(ctx, bytes.NewReader(data))
	first, last := int64(-1), int64(-1)
	for {
		d, err := dmx.NextData()
		if err != nil {
			break
		}
		if d.PES == nil {
			continue
		}
		pts, ok := d.PES.PTS()
		if !ok {
			continue
		}
		if first < 0 || pts < first {
			first = pts
		}
		if pts > last {
			last = pts
		}
	}
	if first < 0 {
		return 0
	}
	return time.Duration(last-first) * time.Second / 90000
}

func push(ctx context.Context, w io.Writer, data []byte, rate float64, loop bool) error {
	start := time.Now()
	var sent int64
	for {
		for i := 0; i < len(data); i += chunkSize {
			if ctx.Err() != nil {
				return nil
			}
			end := min(i+chunkSize, len(data))
			if _, err := w.Write(data[i:end]); err != nil {
				return err
			}
			sent += int64(end - i)
			// Pace against the overall clock so loops do not burst.
			due := time.Duration(float64(sent) / rate * float64(time.Second))
			if wait := due - time.Since(start); wait > 0 {
				sleep(ctx, wait)
			}
		}
		if !loop {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
