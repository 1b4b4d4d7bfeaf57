package mpegts

import (
	"bufio"
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrNoSync is returned when packet size detection finds no sync bytes.
var ErrNoSync = errors.New("mpegts: no sync byte at the start of the stream")

// Stats counts packets seen by a Demuxer.
type Stats struct {
	Packets         int64
	CorruptPackets  int64
	CorruptUnits    int64
	FilteredPackets int64 // dropped by a PID filter before parsing
}

// Demuxer reads MPEG-TS packets from a reader and produces DemuxerData
// containing parsed PAT, PMT, and PES payloads.
type Demuxer struct {
	ctx           context.Context
	reader        io.Reader
	readBuf       []byte
	pool          *unitPool
	pids          *pidTable
	dataBuffer    []*DemuxerData
	packetsParser PacketsParser
	pktSize       int
	eof           bool
	eofData       []*DemuxerData
	stats         Stats
}

// NewDemuxer creates a new MPEG-TS demuxer reading from r. The packet size
// is detected from the first bytes unless DemuxerOptPacketSize fixes it.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Demuxer {
	pids := newPIDTable()
	d := &Demuxer{
		ctx:    ctx,
		reader: r,
		pids:   pids,
		pool:   newUnitPool(pids),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DemuxerOptPacketSize fixes the packet size (188 or 192).
func DemuxerOptPacketSize(size int) func(*Demuxer) {
	return func(d *Demuxer) {
		d.pktSize = size
	}
}

// DemuxerOptFilterPIDs drops every packet whose PID is neither PSI nor
// passed to Follow. Dropped packets are neither parsed nor buffered.
func DemuxerOptFilterPIDs() func(*Demuxer) {
	return func(d *Demuxer) {
		d.pids.filtering = true
	}
}

// Follow keeps pid's packets on a filtering demuxer. Call it when a PMT
// announces a stream of interest; packets seen before that are lost.
func (d *Demuxer) Follow(pid uint16) { d.pids.follow(pid) }

// DemuxerOptPacketsParser sets a custom packet parser callback.
func DemuxerOptPacketsParser(p PacketsParser) func(*Demuxer) {
	return func(d *Demuxer) {
		d.packetsParser = p
	}
}

// PacketSize returns the packet size in use, or 0 before the first read
// when it is being detected.
func (d *Demuxer) PacketSize() int { return d.pktSize }

// Stats returns the packet counters so far.
func (d *Demuxer) Stats() Stats { return d.stats }

// detect peeks at the first two packets' worth of bytes to pick the
// packet size.
func (d *Demuxer) detect() error {
	br := bufio.NewReaderSize(d.reader, 2*M2TSPacketSize+4)
	d.reader = br
	head, err := br.Peek(M2TSPacketSize + 5)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return err
	}
	if len(head) == 0 {
		return io.EOF
	}
	d.pktSize = DetectPacketSize(head)
	if d.pktSize == 0 {
		return errors.Wrapf(ErrNoSync, "first byte 0x%02X", head[0])
	}
	return nil
}

// NextData returns the next parsed unit from the stream. Returns io.EOF
// when all data has been consumed.
func (d *Demuxer) NextData() (*DemuxerData, error) {
	for {
		if len(d.dataBuffer) > 0 {
			data := d.dataBuffer[0]
			d.dataBuffer = d.dataBuffer[1:]
			return data, nil
		}

		if d.eof {
			if len(d.eofData) > 0 {
				data := d.eofData[0]
				d.eofData = d.eofData[1:]
				return data, nil
			}
			return nil, io.EOF
		}

		if d.ctx.Err() != nil {
			return nil, d.ctx.Err()
		}

		if d.readBuf == nil {
			if d.pktSize == 0 {
				if err := d.detect(); err != nil {
					if errors.Is(err, io.EOF) {
						d.eof = true
						continue
					}
					return nil, err
				}
			}
			d.readBuf = make([]byte, d.pktSize)
		}

		_, err := io.ReadFull(d.reader, d.readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				d.drainPool()
				continue
			}
			return nil, err
		}
		d.stats.Packets++

		if pid, ok := peekPID(d.readBuf); ok && !d.pids.wants(pid) {
			d.stats.FilteredPackets++
			continue
		}

		pkt, err := parsePacket(d.readBuf)
		if err != nil {
			d.stats.CorruptPackets++
			continue
		}

		flushed := d.pool.add(pkt)
		if flushed == nil {
			continue
		}

		results, err := d.processPackets(flushed)
		if err != nil {
			d.stats.CorruptUnits++
			continue
		}
		if len(results) == 0 {
			continue
		}
		d.learnPrograms(results)

		d.dataBuffer = results[1:]
		return results[0], nil
	}
}

// learnPrograms marks PMT PIDs announced by a PAT so their sections are
// parsed as PSI.
func (d *Demuxer) learnPrograms(results []*DemuxerData) {
	for _, r := range results {
		if r.PAT == nil {
			continue
		}
		for _, p := range r.PAT.Programs {
			d.pids.markPSI(p.ProgramMapID)
		}
	}
}

func (d *Demuxer) drainPool() {
	for _, packets := range d.pool.drain() {
		results, err := d.processPackets(packets)
		if err != nil {
			d.stats.CorruptUnits++
			continue
		}
		d.learnPrograms(results)
		d.eofData = append(d.eofData, results...)
	}
}

func (d *Demuxer) processPackets(packets []*Packet) ([]*DemuxerData, error) {
	if len(packets) == 0 {
		return nil, nil
	}

	firstPacket := packets[0]
	pid := firstPacket.Header.PID

	if d.packetsParser != nil {
		ds, skip, err := d.packetsParser(packets)
		if err != nil {
			return nil, err
		}
		if skip {
			return ds, nil
		}
	}

	var payload []byte
	for _, p := range packets {
		payload = append(payload, p.Payload...)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	if d.pids.isPSI(pid) {
		return parsePSI(payload, firstPacket)
	}

	if isPESPayload(payload) {
		pes, err := parsePES(payload)
		if err != nil {
			return nil, err
		}
		return []*DemuxerData{{
			FirstPacket: firstPacket,
			PES:         pes,
		}}, nil
	}

	return nil, nil
}
