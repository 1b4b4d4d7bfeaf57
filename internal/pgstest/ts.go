package pgstest

import "encoding/binary"

// Stream types and ids used when muxing test transport streams.
const (
	StreamTypePGS  = 0x90
	StreamTypeH264 = 0x1B
	PrivateStream1 = 0xBD
)

// ES is one elementary stream entry of a PMT.
type ES struct {
	Type     uint8
	PID      uint16
	Language string
}

// Mux writes transport stream packets. With M2TS set every packet gets a
// 4-byte arrival time header.
type Mux struct {
	M2TS bool

	buf     []byte
	cc      map[uint16]uint8
	arrival uint32
}

func (m *Mux) Bytes() []byte { return m.buf }

// PAT writes a single-program PAT pointing at pmtPID.
func (m *Mux) PAT(pmtPID uint16) {
	s := []byte{0x00, 0, 0, 0x00, 0x01, 0xC1, 0x00, 0x00}
	s = append(s, 0x00, 0x01, 0xE0|byte(pmtPID>>8), byte(pmtPID))
	m.section(0x0000, s)
}

// PMT writes a PMT for program 1 listing streams.
func (m *Mux) PMT(pmtPID uint16, streams ...ES) {
	s := []byte{0x02, 0, 0, 0x00, 0x01, 0xC1, 0x00, 0x00, 0xE1, 0x00, 0xF0, 0x00}
	for _, es := range streams {
		var info []byte
		if es.Language != "" {
			info = append(info, 0x0A, 4)
			info = append(info, es.Language[:3]...)
			info = append(info, 0x00)
		}
		s = append(s, es.Type, 0xE0|byte(es.PID>>8), byte(es.PID), 0xF0|byte(len(info)>>8), byte(len(info)))
		s = append(s, info...)
	}
	m.section(pmtPID, s)
}

// section fills in section_length, appends the CRC and writes it with a
// pointer field.
func (m *Mux) section(pid uint16, s []byte) {
	n := len(s) - 3 + 4
	s[1] = 0xB0 | byte(n>>8)&0x0F
	s[2] = byte(n)
	s = binary.BigEndian.AppendUint32(s, crc32(s))
	m.Packets(pid, append([]byte{0x00}, s...))
}

// PES writes one PES packet. A negative dts omits it.
func (m *Mux) PES(pid uint16, streamID byte, pts, dts int64, data []byte) {
	var opt []byte
	flags := byte(0x80)
	if dts >= 0 {
		flags = 0xC0
		opt = append(opt, Timestamp(0x3, pts)...)
		opt = append(opt, Timestamp(0x1, dts)...)
	} else {
		opt = append(opt, Timestamp(0x2, pts)...)
	}
	length := 3 + len(opt) + len(data)
	b := []byte{0x00, 0x00, 0x01, streamID, byte(length >> 8), byte(length), 0x80, flags, byte(len(opt))}
	b = append(b, opt...)
	m.Packets(pid, append(b, data...))
}

// Packets splits payload over as many packets as needed. The first has
// the unit start flag and the last is padded with adaptation field
// stuffing.
func (m *Mux) Packets(pid uint16, payload []byte) {
	if m.cc == nil {
		m.cc = make(map[uint16]uint8)
	}
	first := true
	for first || len(payload) > 0 {
		pkt := make([]byte, 4, 188)
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		if first {
			pkt[1] |= 0x40
		}
		pkt[2] = byte(pid)
		cc := m.cc[pid]
		m.cc[pid] = (cc + 1) & 0x0F

		n := min(len(payload), 184)
		if n == 184 {
			pkt[3] = 0x10 | cc
		} else {
			// Adaptation field: length byte plus stuffing.
			pkt[3] = 0x30 | cc
			af := 184 - n - 1
			pkt = append(pkt, byte(af))
			if af > 0 {
				pkt = append(pkt, 0x00)
				for range af - 1 {
					pkt = append(pkt, 0xFF)
				}
			}
		}
		pkt = append(pkt, payload[:n]...)
		payload = payload[n:]
		first = false

		if m.M2TS {
			m.arrival++
			m.buf = binary.BigEndian.AppendUint32(m.buf, m.arrival&0x3FFFFFFF)
		}
		m.buf = append(m.buf, pkt...)
	}
}

// Timestamp encodes a 33-bit PES timestamp with its 4-bit prefix.
func Timestamp(prefix byte, v int64) []byte {
	return []byte{
		prefix<<4 | byte(v>>29)&0x0E | 0x01,
		byte(v >> 22),
		byte(v>>14)&0xFE | 0x01,
		byte(v >> 7),
		byte(v<<1)&0xFE | 0x01,
	}
}

func crc32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
