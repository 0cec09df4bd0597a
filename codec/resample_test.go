package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/zsiec/transmux/media"
)

func mathFloat32(b uint32) float32 { return math.Float32frombits(b) }

func s16Frame(rate int, layout media.ChannelLayout, samples ...int16) *media.Frame {
	ch := layout.NbChannels()
	n := len(samples) / ch
	f := media.NewFrame(media.SampleFmtS16, layout, ch, rate, n)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(f.Data[0][i*2:], uint16(s))
	}
	return f
}

func sampleAt(f *media.Frame, i int) int16 {
	return int16(binary.LittleEndian.Uint16(f.Data[0][i*2:]))
}

func TestResamplerFormatConversion(t *testing.T) {
	t.Parallel()
	in := ResampleParams{Channels: 1, Layout: media.LayoutMono, SampleRate: 48000, Format: media.SampleFmtS16}
	out := ResampleParams{Channels: 1, Layout: media.LayoutMono, SampleRate: 48000, Format: media.SampleFmtFLT}
	r := NewResampler(in, out, nil)
	got, err := r.Convert(s16Frame(48000, media.LayoutMono, 1<<14))
	if err != nil {
		t.Fatal(err)
	}
	if got.Format != media.SampleFmtFLT || got.NbSamples != 1 {
		t.Fatalf("format=%v samples=%d", got.Format, got.NbSamples)
	}
	f := mathFloat32(binary.LittleEndian.Uint32(got.Data[0]))
	if f < 0.49 || f > 0.51 {
		t.Errorf("converted sample = %f, want ~0.5", f)
	}
}

func TestResamplerDownmixChannels(t *testing.T) {
	t.Parallel()
	in := ResampleParams{Channels: 2, Layout: media.LayoutStereo, SampleRate: 48000, Format: media.SampleFmtS16}
	out := ResampleParams{Channels: 1, Layout: media.LayoutMono, SampleRate: 48000, Format: media.SampleFmtS16}
	r := NewResampler(in, out, nil)
	got, err := r.Convert(s16Frame(48000, media.LayoutStereo, 100, 200, 300, 400))
	if err != nil {
		t.Fatal(err)
	}
	if got.Channels != 1 || got.NbSamples != 2 {
		t.Fatalf("channels=%d samples=%d", got.Channels, got.NbSamples)
	}
	// Positional routing: channel 0 carries the left samples.
	if sampleAt(got, 0) != 100 || sampleAt(got, 1) != 300 {
		t.Errorf("mono samples = %d, %d, want 100, 300", sampleAt(got, 0), sampleAt(got, 1))
	}
}

func TestResamplerChannelMapping(t *testing.T) {
	t.Parallel()
	in := ResampleParams{Channels: 2, Layout: media.LayoutStereo, SampleRate: 48000, Format: media.SampleFmtS16}
	out := ResampleParams{Channels: 2, Layout: media.LayoutStereo, SampleRate: 48000, Format: media.SampleFmtS16}
	// Swap left and right.
	r := NewResampler(in, out, []int{1, 0})
	got, err := r.Convert(s16Frame(48000, media.LayoutStereo, 100, 200))
	if err != nil {
		t.Fatal(err)
	}
	if sampleAt(got, 0) != 200 || sampleAt(got, 1) != 100 {
		t.Errorf("mapped samples = %d, %d, want 200, 100", sampleAt(got, 0), sampleAt(got, 1))
	}
}

func TestResamplerRateConversionCount(t *testing.T) {
	t.Parallel()
	in := ResampleParams{Channels: 1, Layout: media.LayoutMono, SampleRate: 48000, Format: media.SampleFmtS16}
	out := ResampleParams{Channels: 1, Layout: media.LayoutMono, SampleRate: 24000, Format: media.SampleFmtS16}
	r := NewResampler(in, out, nil)
	total := 0
	for i := 0; i < 10; i++ {
		f, err := r.Convert(s16Frame(48000, media.LayoutMono, make([]int16, 480)...))
		if err != nil {
			t.Fatal(err)
		}
		if f != nil {
			total += f.NbSamples
		}
	}
	// 4800 input samples at 2:1 → 2400 out, within one sample of carry.
	if total < 2399 || total > 2401 {
		t.Errorf("output samples = %d, want ~2400", total)
	}
}

func TestBuildChannelMapping(t *testing.T) {
	t.Parallel()
	// Select front-left only out of stereo for a substream.
	mapping := BuildChannelMapping(media.LayoutStereo, media.ChFrontLeft, 1)
	if len(mapping) != 1 || mapping[0] != 0 {
		t.Errorf("mapping = %v, want [0]", mapping)
	}
	mapping = BuildChannelMapping(media.LayoutStereo, media.ChFrontRight, 1)
	if len(mapping) != 1 || mapping[0] != 1 {
		t.Errorf("mapping = %v, want [1]", mapping)
	}
	// A selector naming a speaker the source lacks falls back to the
	// source's own channel order.
	mapping = BuildChannelMapping(media.LayoutStereo, media.ChBackCenter, 1)
	if len(mapping) != 1 || mapping[0] != 0 {
		t.Errorf("fallback mapping = %v, want [0]", mapping)
	}
}

func TestGainFilter(t *testing.T) {
	t.Parallel()
	g := NewGain(0.5)
	if err := g.Push(s16Frame(48000, media.LayoutMono, 1000)); err != nil {
		t.Fatal(err)
	}
	out, err := g.Drain()
	if err != nil || out == nil {
		t.Fatalf("drain: %v, %v", out, err)
	}
	got := sampleAt(out, 0)
	if got < 495 || got > 505 {
		t.Errorf("gained sample = %d, want ~500", got)
	}
	if next, _ := g.Drain(); next != nil {
		t.Error("drain after exhaustion should be nil")
	}
}
