package mpegts

import "github.com/cockroachdb/errors"

const (
	// PacketSize is a plain transport stream packet.
	PacketSize = 188
	// M2TSPacketSize is a Blu-ray packet: a 4-byte TP_extra_header
	// followed by a plain packet.
	M2TSPacketSize = 192

	syncByte = 0x47
)

// DetectPacketSize inspects the start of a stream and returns PacketSize,
// M2TSPacketSize, or 0 when neither layout has a sync byte where expected.
// Two consecutive sync bytes win over a single one, so a corrupt second
// packet still yields a guess.
func DetectPacketSize(head []byte) int {
	switch {
	case synced(head, 0, PacketSize, true):
		return PacketSize
	case synced(head, 4, M2TSPacketSize, true):
		return M2TSPacketSize
	case synced(head, 0, PacketSize, false):
		return PacketSize
	case synced(head, 4, M2TSPacketSize, false):
		return M2TSPacketSize
	}
	return 0
}

func synced(head []byte, at, size int, both bool) bool {
	if len(head) <= at || head[at] != syncByte {
		return false
	}
	if !both || len(head) <= at+size {
		return true
	}
	return head[at+size] == syncByte
}

// peekPID reads the PID of a raw 188- or 192-byte packet without parsing
// the rest. ok is false when the sync byte is not where it should be.
func peekPID(buf []byte) (pid uint16, ok bool) {
	if len(buf) == M2TSPacketSize {
		buf = buf[4:]
	}
	if len(buf) != PacketSize || buf[0] != syncByte {
		return 0, false
	}
	return uint16(buf[1]&0x1F)<<8 | uint16(buf[2]), true
}

func parsePacket(buf []byte) (*Packet, error) {
	p := &Packet{}
	switch len(buf) {
	case PacketSize:
	case M2TSPacketSize:
		// Top two bits are copy permission, the rest is the arrival time.
		p.ArrivalTime = (uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])) & 0x3FFFFFFF
		buf = buf[4:]
	default:
		return nil, errors.Newf("mpegts: packet size %d, expected %d or %d", len(buf), PacketSize, M2TSPacketSize)
	}
	if buf[0] != syncByte {
		return nil, errors.Newf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 {
			p.Header.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		offset = min(offset+1+afLen, PacketSize)
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = make([]byte, PacketSize-offset)
		copy(p.Payload, buf[offset:])
	}
	return p, nil
}
