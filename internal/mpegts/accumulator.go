package mpegts

import (
	"maps"
	"slices"
)

const pidPAT = 0x0000

type pidRole uint8

const (
	roleNone     pidRole = iota
	rolePSI              // PAT, or a PMT the PAT announced
	roleFollowed         // PES PID kept by a filtering demuxer
)

// pidTable classifies PIDs. With filtering on, only PSI and followed PIDs
// reach a unitBuffer; every other packet is dropped by header.
type pidTable struct {
	roles     map[uint16]pidRole
	filtering bool
}

func newPIDTable() *pidTable {
	return &pidTable{roles: map[uint16]pidRole{pidPAT: rolePSI}}
}

func (t *pidTable) markPSI(pid uint16) { t.roles[pid] = rolePSI }

// follow never demotes a PSI PID.
func (t *pidTable) follow(pid uint16) {
	if t.roles[pid] == roleNone {
		t.roles[pid] = roleFollowed
	}
}

func (t *pidTable) isPSI(pid uint16) bool { return t.roles[pid] == rolePSI }

func (t *pidTable) wants(pid uint16) bool {
	return !t.filtering || t.roles[pid] != roleNone
}

// unitBuffer collects the packets of one PID until the unit they carry is
// complete. PES units end at the next unit start; PSI units end as soon as
// every section they begin is in.
type unitBuffer struct {
	pid     uint16
	table   *pidTable
	packets []*Packet
	lastCC  uint8
}

func newUnitBuffer(pid uint16, t *pidTable) *unitBuffer {
	return &unitBuffer{pid: pid, table: t}
}

func (b *unitBuffer) add(p *Packet) []*Packet {
	h := p.Header
	switch {
	case h.TransportErrorIndicator:
		b.packets = nil
		return nil
	case !h.HasPayload:
		return nil
	}

	if len(b.packets) > 0 && !h.DiscontinuityIndicator {
		switch (h.ContinuityCounter - b.lastCC) & 0x0F {
		case 0:
			return nil // repeated packet
		case 1:
		default:
			b.packets = nil
		}
	}

	var done []*Packet
	if h.PayloadUnitStartIndicator {
		done = b.take()
	}
	b.packets = append(b.packets, p)
	b.lastCC = h.ContinuityCounter

	if done == nil && b.table.isPSI(b.pid) && sectionsComplete(joinPayloads(b.packets)) {
		done = b.take()
	}
	return done
}

func (b *unitBuffer) take() []*Packet {
	if len(b.packets) == 0 {
		return nil
	}
	done := b.packets
	b.packets = nil
	return done
}

func joinPayloads(packets []*Packet) []byte {
	n := 0
	for _, p := range packets {
		n += len(p.Payload)
	}
	out := make([]byte, 0, n)
	for _, p := range packets {
		out = append(out, p.Payload...)
	}
	return out
}

// sectionsComplete reports whether a PSI payload, pointer field first,
// holds every section it begins. Stuffing (0xFF) or a cleared
// section_syntax_indicator ends the walk.
func sectionsComplete(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return false
	}
	for off < len(payload) {
		rest := payload[off:]
		if rest[0] == 0xFF {
			return true
		}
		if len(rest) < 3 {
			return false
		}
		if rest[1]&0x80 == 0 {
			return true
		}
		n := 3 + (int(rest[1]&0x0F)<<8 | int(rest[2]))
		if len(rest) < n {
			return false
		}
		off += n
	}
	return true
}

// unitPool routes packets to per-PID buffers.
type unitPool struct {
	table   *pidTable
	buffers map[uint16]*unitBuffer
}

func newUnitPool(t *pidTable) *unitPool {
	return &unitPool{table: t, buffers: make(map[uint16]*unitBuffer)}
}

func (up *unitPool) add(p *Packet) []*Packet {
	pid := p.Header.PID
	b, ok := up.buffers[pid]
	if !ok {
		b = newUnitBuffer(pid, up.table)
		up.buffers[pid] = b
	}
	return b.add(p)
}

// drain empties every buffer in PID order so the PAT (PID 0) is parsed
// before the PMTs it announces.
func (up *unitPool) drain() [][]*Packet {
	var all [][]*Packet
	for _, pid := range slices.Sorted(maps.Keys(up.buffers)) {
		if packets := up.buffers[pid].take(); packets != nil {
			all = append(all, packets)
		}
	}
	return all
}
