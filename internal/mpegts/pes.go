package mpegts

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	pesStartSize    = 6 // start code, stream id, PES_packet_length
	pesOptionalSize = 3 // flags, flags, PES_header_data_length
	timestampSize   = 5
)

// ErrPESTimestampFlags is returned for the forbidden PTS_DTS_flags value 01.
var ErrPESTimestampFlags = errors.New("mpegts: PES has DTS without PTS")

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// hasOptionalHeader reports whether packets with this stream id carry the
// optional PES header (ISO/IEC 13818-1 table 2-21).
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBC, // program_stream_map
		0xBE, // padding_stream
		0xBF, // private_stream_2
		0xF0, 0xF1, // ECM, EMM
		0xF2, // DSMCC
		0xF8, // H.222.1 type E
		0xFF: // program_stream_directory
		return false
	}
	return true
}

func parsePES(payload []byte) (*PESData, error) {
	if len(payload) < pesStartSize {
		return nil, errors.Newf("mpegts: PES packet too short (%d bytes)", len(payload))
	}
	if !isPESPayload(payload) {
		return nil, errors.New("mpegts: invalid PES start code")
	}

	streamID := payload[3]
	// PES_packet_length 0 is unbounded; a length longer than what was
	// reassembled keeps what we have.
	if n := int(binary.BigEndian.Uint16(payload[4:6])); n > 0 && pesStartSize+n <= len(payload) {
		payload = payload[:pesStartSize+n]
	}
	pes := &PESData{Header: &PESHeader{StreamID: streamID}}

	if !hasOptionalHeader(streamID) {
		pes.Data = payload[pesStartSize:]
		return pes, nil
	}

	const fixed = pesStartSize + pesOptionalSize
	if len(payload) < fixed {
		return nil, errors.New("mpegts: PES optional header too short")
	}
	end := min(fixed+int(payload[8]), len(payload))
	opt, err := parseOptionalHeader(payload[7]>>6, payload[fixed:end])
	if err != nil {
		return nil, err
	}
	pes.Header.OptionalHeader = opt
	pes.Data = payload[end:]
	return pes, nil
}

// parseOptionalHeader reads the timestamps from the header data that
// follows PES_header_data_length. Timestamps cut short by the declared
// header length are left unset.
func parseOptionalHeader(flags uint8, hdr []byte) (*PESOptionalHeader, error) {
	opt := &PESOptionalHeader{}
	switch flags {
	case 0b00:
	case 0b01:
		return nil, ErrPESTimestampFlags
	case 0b10:
		if len(hdr) >= timestampSize {
			opt.PTS = parsePTSOrDTS(hdr[:timestampSize])
		}
	case 0b11:
		if len(hdr) >= 2*timestampSize {
			opt.PTS = parsePTSOrDTS(hdr[:timestampSize])
			opt.DTS = parsePTSOrDTS(hdr[timestampSize : 2*timestampSize])
		}
	}
	return opt, nil
}

// parsePTSOrDTS extracts a 33-bit timestamp from 5 PES timestamp bytes,
// skipping the prefix nibble and the marker bits.
func parsePTSOrDTS(bs []byte) *ClockReference {
	if len(bs) < timestampSize {
		return nil
	}
	base := int64(bs[0]>>1&0x07)<<30 |
		int64(binary.BigEndian.Uint16(bs[1:3])>>1)<<15 |
		int64(binary.BigEndian.Uint16(bs[3:5])>>1)
	return &ClockReference{Base: base}
}

// IsPrivateStream1 reports whether the PES uses stream id 0xBD, the one
// Blu-ray muxers put PGS on.
func (p *PESData) IsPrivateStream1() bool {
	return p.Header != nil && p.Header.StreamID == StreamIDPrivateOne
}

// SupTimestamps returns PTS and DTS narrowed to the 32-bit fields of a .sup
// segment header. Bit 32 of the 90 kHz clock is dropped, so values wrap
// every 2^32 ticks. A missing DTS is 0. ok is false without a PTS.
func (p *PESData) SupTimestamps() (pts, dts uint32, ok bool) {
	v, ok := p.PTS()
	if !ok {
		return 0, 0, false
	}
	d, _ := p.DTS()
	return uint32(v), uint32(d), true
}
