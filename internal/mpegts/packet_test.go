package mpegts

import "testing"

func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F)
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func TestParsePacket(t *testing.T) {
	t.Parallel()
	p, err := parsePacket(makePacket(0x1200, 5, true, []byte{0x01, 0x02, 0x03}))
	if err != nil {
		t.Fatal(err)
	}
	if p.Header.PID != 0x1200 || p.Header.ContinuityCounter != 5 {
		t.Errorf("PID/CC = 0x%X/%d", p.Header.PID, p.Header.ContinuityCounter)
	}
	if !p.Header.PayloadUnitStartIndicator || !p.Header.HasPayload || p.Header.HasAdaptationField {
		t.Errorf("flags = %+v", p.Header)
	}
	if len(p.Payload) != 184 || p.Payload[2] != 0x03 {
		t.Errorf("payload = %d bytes", len(p.Payload))
	}
	if p.ArrivalTime != 0 {
		t.Errorf("ArrivalTime = %d for plain TS", p.ArrivalTime)
	}
}

func TestParsePacket_M2TS(t *testing.T) {
	t.Parallel()
	buf := append([]byte{0xC0, 0x12, 0x34, 0x56}, makePacket(0x1200, 1, false, []byte{0xAB})...)
	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.ArrivalTime != 0x00123456 {
		t.Errorf("ArrivalTime = 0x%X, want 0x123456 (copy permission bits masked)", p.ArrivalTime)
	}
	if p.Header.PID != 0x1200 || p.Payload[0] != 0xAB {
		t.Errorf("packet = %+v", p.Header)
	}
}

func TestParsePacket_AdaptationField(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 0, false, nil)
	buf[3] = 0x30
	buf[4] = 10   // adaptation field length
	buf[5] = 0x80 // discontinuity
	buf[15] = 0xEE
	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.DiscontinuityIndicator {
		t.Error("DiscontinuityIndicator = false")
	}
	if len(p.Payload) != 188-15 || p.Payload[0] != 0xEE {
		t.Errorf("payload = %d bytes starting 0x%02X", len(p.Payload), p.Payload[0])
	}
}

func TestParsePacket_Errors(t *testing.T) {
	t.Parallel()
	bad := makePacket(0x100, 0, false, nil)
	bad[0] = 0x48
	tests := map[string][]byte{
		"bad sync":      bad,
		"bad m2ts sync": append(make([]byte, 4), bad...),
		"short":         make([]byte, 100),
		"between sizes": make([]byte, 190),
	}
	for name, buf := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := parsePacket(buf); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDetectPacketSize(t *testing.T) {
	t.Parallel()
	ts := append(makePacket(0, 0, true, nil), makePacket(0, 1, true, nil)...)
	m2ts := append(append([]byte{0, 0, 0, 1}, makePacket(0, 0, true, nil)...), 0, 0, 0, 2, syncByte)
	corruptSecond := append(makePacket(0, 0, true, nil), make([]byte, 10)...)

	tests := []struct {
		name string
		head []byte
		want int
	}{
		{"ts", ts, PacketSize},
		{"m2ts", m2ts, M2TSPacketSize},
		{"ts with corrupt second packet", corruptSecond, PacketSize},
		{"single ts sync", []byte{syncByte, 0, 0}, PacketSize},
		{"no sync", []byte("PG\x00\x00\x00\x00"), 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectPacketSize(tt.head); got != tt.want {
				t.Errorf("DetectPacketSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func FuzzParsePacket(f *testing.F) {
	f.Add(makePacket(0, 0, true, nil))
	af := makePacket(0x100, 0, false, nil)
	af[3] = 0x30
	af[4] = 0xB7
	f.Add(af)
	f.Add(append([]byte{0, 0, 0, 0}, af...))
	f.Fuzz(func(t *testing.T, data []byte) {
		parsePacket(data) // must not panic
	})
}
