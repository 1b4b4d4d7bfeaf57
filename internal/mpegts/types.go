// Package mpegts demuxes MPEG transport streams, both broadcast 188-byte
// packets and Blu-ray M2TS 192-byte packets. It discovers programs through
// PAT/PMT and reassembles PES packets per PID with PTS/DTS extraction.
// A filtering demuxer only reassembles the PIDs it is told to follow.
package mpegts

// Elementary stream types found in PMTs of the streams we care about.
const (
	StreamTypeAAC      = 0x0F
	StreamTypeH264     = 0x1B
	StreamTypeH265     = 0x24
	StreamTypeAC3      = 0x81
	StreamTypePGS      = 0x90 // Blu-ray presentation graphics
	StreamTypeIG       = 0x91 // Blu-ray interactive graphics
	StreamTypeTextST   = 0x92 // Blu-ray text subtitles
	StreamIDPrivateOne = 0xBD // PES stream id carrying PGS
)

// StreamTypeName returns a short label for known stream types.
func StreamTypeName(t uint8) string {
	switch t {
	case StreamTypeAAC:
		return "aac"
	case StreamTypeH264:
		return "h264"
	case StreamTypeH265:
		return "h265"
	case StreamTypeAC3:
		return "ac3"
	case StreamTypePGS:
		return "pgs"
	case StreamTypeIG:
		return "ig"
	case StreamTypeTextST:
		return "textst"
	default:
		return "unknown"
	}
}

// Packet is a parsed transport stream packet. ArrivalTime is the 30-bit
// arrival time stamp of M2TS packets and zero for plain TS.
type Packet struct {
	Header      PacketHeader
	Payload     []byte
	ArrivalTime uint32
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// DemuxerData is the output of the demuxer for each logical unit (PAT, PMT,
// or PES packet). Exactly one of PAT, PMT, or PES will be non-nil.
type DemuxerData struct {
	FirstPacket *Packet
	PAT         *PATData
	PMT         *PMTData
	PES         *PESData
}

// PID returns the PID the unit was carried on.
func (d *DemuxerData) PID() uint16 {
	if d.FirstPacket == nil {
		return 0
	}
	return d.FirstPacket.Header.PID
}

// PATData contains the parsed Program Association Table.
type PATData struct {
	Programs []*PATProgram
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramMapID  uint16
	ProgramNumber uint16
}

// PMTData contains the parsed Program Map Table.
type PMTData struct {
	ProgramNumber     uint16
	ElementaryStreams []*PMTElementaryStream
}

// PMTElementaryStream describes a single elementary stream in a PMT.
// Language comes from an ISO 639 descriptor when the PMT carries one.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    uint8
	Language      string
}

// IsPGS reports whether the stream carries presentation graphics.
func (es *PMTElementaryStream) IsPGS() bool {
	return es.StreamType == StreamTypePGS
}

// PESData contains a reassembled Packetized Elementary Stream.
type PESData struct {
	Data   []byte
	Header *PESHeader
}

// PTS returns the presentation timestamp if the header carries one.
func (p *PESData) PTS() (int64, bool) {
	if p.Header == nil || p.Header.OptionalHeader == nil || p.Header.OptionalHeader.PTS == nil {
		return 0, false
	}
	return p.Header.OptionalHeader.PTS.Base, true
}

// DTS returns the decoding timestamp if the header carries one.
func (p *PESData) DTS() (int64, bool) {
	if p.Header == nil || p.Header.OptionalHeader == nil || p.Header.OptionalHeader.DTS == nil {
		return 0, false
	}
	return p.Header.OptionalHeader.DTS.Base, true
}

// PESHeader contains the parsed PES packet header.
type PESHeader struct {
	OptionalHeader *PESOptionalHeader
	StreamID       uint8
}

// PESOptionalHeader carries optional PES fields including timestamps.
type PESOptionalHeader struct {
	PTS *ClockReference
	DTS *ClockReference
}

// ClockReference holds a 33-bit MPEG-TS timestamp base value (90 kHz clock).
type ClockReference struct {
	Base int64
}

// PacketsParser is a callback invoked with accumulated packets for a PID
// before standard parsing. If skip is true, the demuxer skips its own
// parsing for those packets.
type PacketsParser func(ps []*Packet) (ds []*DemuxerData, skip bool, err error)
