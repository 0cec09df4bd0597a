package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zsiec/transmux/media"
)

// buildADTS wraps payload in a 7-byte ADTS header (no CRC).
// profile is the 2-bit ADTS profile (AAC-LC = 1), rateIdx indexes the
// ISO sample rate table, channels is the channel configuration.
func buildADTS(profile, rateIdx, channels byte, payload []byte) []byte {
	frameLen := 7 + len(payload)
	h := []byte{
		0xFF, 0xF1,
		profile<<6 | rateIdx<<2 | channels>>2,
		channels<<6 | byte(frameLen>>11)&0x03,
		byte(frameLen >> 3),
		byte(frameLen<<5) | 0x1F,
		0xFC,
	}
	return append(h, payload...)
}

func TestADTSToASC(t *testing.T) {
	t.Parallel()
	payload := []byte{0x21, 0x42, 0x63}
	pkt := &media.Packet{Data: buildADTS(1, 3, 2, payload), Duration: 1024}

	f := NewADTSToASC()
	out, err := f.Filter(pkt)
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if !bytes.Equal(out.Data, payload) {
		t.Errorf("payload = % x, want % x (header stripped)", out.Data, payload)
	}
	if out.Duration != 1024 {
		t.Errorf("duration = %d, want preserved", out.Duration)
	}

	// ASC for AAC-LC (object type 2), 48 kHz (index 3), stereo:
	// 00010 0011 0010 000 → 0x11 0x90.
	asc := f.Extradata()
	if !bytes.Equal(asc, []byte{0x11, 0x90}) {
		t.Errorf("ASC = % x, want 11 90", asc)
	}

	// No ADTS sync word may survive filtering.
	if len(out.Data) >= 2 && out.Data[0] == 0xFF && out.Data[1]&0xF0 == 0xF0 {
		t.Error("output still carries an ADTS sync word")
	}
}

func TestADTSToASCShortPacket(t *testing.T) {
	t.Parallel()
	f := NewADTSToASC()
	_, err := f.Filter(&media.Packet{Data: []byte{0xFF, 0xF1, 0x00}})
	if !errors.Is(err, ErrAgain) {
		t.Errorf("short packet err = %v, want ErrAgain", err)
	}
}

func TestADTSToASCBadSync(t *testing.T) {
	t.Parallel()
	f := NewADTSToASC()
	_, err := f.Filter(&media.Packet{Data: bytes.Repeat([]byte{0x42}, 16)})
	if !errors.Is(err, ErrInvalidADTS) {
		t.Errorf("bad sync err = %v, want ErrInvalidADTS", err)
	}
}
