package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/zsiec/transmux/media"
)

func TestPCMDecodeS16BE(t *testing.T) {
	t.Parallel()
	d, err := NewPCMDecoder(media.CodecPCMS16BE, 2, 48000, media.LayoutStereo)
	if err != nil {
		t.Fatal(err)
	}
	// Two samples, two channels, big endian.
	in := []byte{
		0x12, 0x34, 0x56, 0x78,
		0xFF, 0xFE, 0x00, 0x01,
	}
	frame, consumed, err := d.Decode(in, 0, media.R(1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(in) {
		t.Errorf("consumed = %d, want %d", consumed, len(in))
	}
	if frame.NbSamples != 2 || frame.Format != media.SampleFmtS16 {
		t.Fatalf("frame: samples=%d fmt=%v", frame.NbSamples, frame.Format)
	}
	want := []byte{
		0x34, 0x12, 0x78, 0x56,
		0xFE, 0xFF, 0x01, 0x00,
	}
	if !bytes.Equal(frame.Data[0], want) {
		t.Errorf("decoded = % x, want % x", frame.Data[0], want)
	}
}

func TestPCMDecodePlanar(t *testing.T) {
	t.Parallel()
	d, err := NewPCMDecoder(media.CodecPCMS16LEPlanar, 2, 48000, media.LayoutStereo)
	if err != nil {
		t.Fatal(err)
	}
	// Planar wire layout: [L0 L1][R0 R1], little endian.
	in := []byte{
		0x01, 0x00, 0x02, 0x00, // left plane
		0x03, 0x00, 0x04, 0x00, // right plane
	}
	frame, _, err := d.Decode(in, 0, media.R(1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	// Interleaved output: L0 R0 L1 R1.
	want := []byte{0x01, 0x00, 0x03, 0x00, 0x02, 0x00, 0x04, 0x00}
	if !bytes.Equal(frame.Data[0], want) {
		t.Errorf("decoded = % x, want % x", frame.Data[0], want)
	}
}

func TestPCMDecode24BitWidens(t *testing.T) {
	t.Parallel()
	d, err := NewPCMDecoder(media.CodecPCMS24BE, 1, 48000, media.LayoutMono)
	if err != nil {
		t.Fatal(err)
	}
	in := []byte{0x12, 0x34, 0x56}
	frame, _, err := d.Decode(in, 0, media.R(1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	got := binary.LittleEndian.Uint32(frame.Data[0])
	if got != 0x12345600 {
		t.Errorf("widened sample = %#08x, want 0x12345600", got)
	}
}

func TestPCMEncoderRoundTrip(t *testing.T) {
	t.Parallel()
	d, err := NewPCMDecoder(media.CodecPCMS16BE, 2, 48000, media.LayoutStereo)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewPCMEncoder(media.CodecPCMS16LE, 2, 48000, media.LayoutStereo)
	if err != nil {
		t.Fatal(err)
	}
	in := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}
	frame, _, err := d.Decode(in, 0, media.R(1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	pkt, err := e.Encode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Duration != int64(frame.NbSamples) {
		t.Errorf("packet duration = %d samples, want %d", pkt.Duration, frame.NbSamples)
	}
	if !pkt.Key {
		t.Error("pcm packets must be keyframes")
	}
	// Byte-swap of the input: LE rendering of the same samples.
	want := []byte{0x34, 0x12, 0x78, 0x56, 0xBC, 0x9A, 0xF0, 0xDE}
	if !bytes.Equal(pkt.Data, want) {
		t.Errorf("encoded = % x, want % x", pkt.Data, want)
	}
}

func TestPCMEncoder24Bit(t *testing.T) {
	t.Parallel()
	e, err := NewPCMEncoder(media.CodecPCMS24LE, 1, 48000, media.LayoutMono)
	if err != nil {
		t.Fatal(err)
	}
	frame := media.NewFrame(media.SampleFmtS32, media.LayoutMono, 1, 48000, 1)
	binary.LittleEndian.PutUint32(frame.Data[0], 0x12345600)
	pkt, err := e.Encode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pkt.Data, []byte{0x56, 0x34, 0x12}) {
		t.Errorf("24-bit packet = % x, want 56 34 12", pkt.Data)
	}
}

func TestPCMEncoderRejectsBigEndianTargets(t *testing.T) {
	t.Parallel()
	if _, err := NewPCMEncoder(media.CodecPCMS16BE, 2, 48000, media.LayoutStereo); err == nil {
		t.Error("big-endian encode target should be rejected")
	}
	if _, err := NewPCMDecoder(media.CodecPCMDVD, 2, 48000, media.LayoutStereo); err == nil {
		t.Error("DVD wrapper decode should be rejected")
	}
}

func TestFloatToS32(t *testing.T) {
	t.Parallel()
	frame := media.NewFrame(media.SampleFmtFLT, media.LayoutMono, 1, 48000, 2)
	binary.LittleEndian.PutUint32(frame.Data[0], floatBits(0.5))
	binary.LittleEndian.PutUint32(frame.Data[0][4:], floatBits(-1.0))
	out := FloatToS32(frame)
	if out.Format != media.SampleFmtS32 {
		t.Fatalf("format = %v, want s32", out.Format)
	}
	got0 := int32(binary.LittleEndian.Uint32(out.Data[0]))
	if got0 != 1<<30 {
		t.Errorf("0.5 → %d, want %d", got0, int32(1<<30))
	}
	got1 := int32(binary.LittleEndian.Uint32(out.Data[0][4:]))
	if got1 != -1<<31 {
		t.Errorf("-1.0 → %d, want %d", got1, int32(-1<<31))
	}
}

func floatBits(f float32) uint32 { return math.Float32bits(f) }
