package input

import (
	"bytes"
	"io"
	"testing"

	"github.com/zsiec/transmux/media"
)

func nalu(header byte, payload ...byte) []byte {
	out := []byte{0, 0, 0, 1, header}
	return append(out, payload...)
}

func annexBStream() []byte {
	var buf bytes.Buffer
	buf.Write(nalu(0x09, 0xF0)) // AUD
	buf.Write(nalu(0x67, 0x42, 0x00, 0x1E, 0xFB, 0x80))
	buf.Write(nalu(0x68, 0xCE, 0x38, 0x80))
	buf.Write(nalu(0x65, 0xB0, 0x00))
	buf.Write(nalu(0x09, 0xF0))
	buf.Write(nalu(0x41, 0xC0, 0x00))
	buf.Write(nalu(0x09, 0xF0))
	buf.Write(nalu(0x41, 0xC0, 0x00))
	return buf.Bytes()
}

func TestElementaryStreamPackets(t *testing.T) {
	t.Parallel()
	s := NewElementaryStream(annexBStream(), media.CodecH264, media.R(30, 1))
	if got := s.Info().Frames; got != 3 {
		t.Fatalf("frames = %d, want 3", got)
	}
	if s.InputCodec() != media.CodecH264 {
		t.Error("codec mismatch")
	}
	if s.Header() == nil {
		t.Error("first AU should yield parameter-set header")
	}
	for i := 0; ; i++ {
		pkt, err := s.ReadPacket()
		if err == io.EOF {
			if i != 3 {
				t.Fatalf("EOF after %d packets, want 3", i)
			}
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if pkt.PTS != int64(i) {
			t.Errorf("packet %d pts = %d", i, pkt.PTS)
		}
		if pkt.TimeBase != media.R(1, 30) {
			t.Errorf("packet %d timebase = %v", i, pkt.TimeBase)
		}
		if pkt.DTS != media.NoPTS {
			t.Errorf("packet %d dts = %d, want NoPTS", i, pkt.DTS)
		}
	}
}

func TestElementaryStreamTrimParams(t *testing.T) {
	t.Parallel()
	s := NewElementaryStream(annexBStream(), media.CodecH264, media.R(30, 1))
	list, off := s.TrimParam()
	if list != nil || off != 0 {
		t.Error("fresh source should carry no trim")
	}
}
