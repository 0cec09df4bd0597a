package codec

import (
	"testing"

	"github.com/zsiec/transmux/media"
)

func TestAutoSelectChannelLayout(t *testing.T) {
	t.Parallel()
	// No list: the conventional ladder by source channel count.
	if got := AutoSelectChannelLayout(nil, 0, 6); got != media.Layout5Point1 {
		t.Errorf("6ch ladder = %v, want 5.1", got)
	}
	if got := AutoSelectChannelLayout(nil, media.LayoutStereo, 0); got != media.LayoutStereo {
		t.Errorf("stereo source = %v, want stereo", got)
	}
	// With a list: first matching channel count, else the head.
	offered := []media.ChannelLayout{media.LayoutMono, media.Layout5Point1}
	if got := AutoSelectChannelLayout(offered, media.Layout5Point1, 0); got != media.Layout5Point1 {
		t.Errorf("offered match = %v, want 5.1", got)
	}
	if got := AutoSelectChannelLayout(offered, media.LayoutQuad, 0); got != media.LayoutMono {
		t.Errorf("no match = %v, want list head", got)
	}
}

func TestAutoSelectSampleRate(t *testing.T) {
	t.Parallel()
	if got := AutoSelectSampleRate(nil, 44100); got != 44100 {
		t.Errorf("no list = %d, want source rate", got)
	}
	offered := []int{32000, 44100, 48000}
	if got := AutoSelectSampleRate(offered, 44100); got != 44100 {
		t.Errorf("exact match = %d, want 44100", got)
	}
	// 47000 → 48000 minimizes |1 - r/src|.
	if got := AutoSelectSampleRate(offered, 47000); got != 48000 {
		t.Errorf("nearest = %d, want 48000", got)
	}
	if got := AutoSelectSampleRate(offered, 8000); got != 32000 {
		t.Errorf("low source = %d, want 32000", got)
	}
}

func TestAutoSelectSampleFormat(t *testing.T) {
	t.Parallel()
	if got := AutoSelectSampleFormat(nil, media.SampleFmtS16); got != media.SampleFmtS16 {
		t.Errorf("no list = %v, want source", got)
	}
	offered := []media.SampleFormat{media.SampleFmtFLTP, media.SampleFmtS16}
	if got := AutoSelectSampleFormat(offered, media.SampleFmtS16); got != media.SampleFmtS16 {
		t.Errorf("offered source = %v, want s16", got)
	}
	// s32 not offered: scan from its tier downward lands on s16.
	if got := AutoSelectSampleFormat(offered, media.SampleFmtS32); got != media.SampleFmtS16 {
		t.Errorf("tier scan = %v, want s16", got)
	}
	// Unresolved source: encoder's first offer.
	if got := AutoSelectSampleFormat(offered, media.SampleFmtNone); got != media.SampleFmtFLTP {
		t.Errorf("none source = %v, want first offer", got)
	}
	// dbl source, only fltp offered: scanning down from dbl tier.
	if got := AutoSelectSampleFormat([]media.SampleFormat{media.SampleFmtFLTP}, media.SampleFmtDBL); got != media.SampleFmtFLTP {
		t.Errorf("dbl → %v, want fltp", got)
	}
}

func TestPCMConversionFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		src  media.CodecID
		bits int
		want media.CodecID
	}{
		{media.CodecPCMS16LE, 16, media.CodecUnknown}, // already container-friendly
		{media.CodecPCMS16BE, 16, media.CodecPCMS16LE},
		{media.CodecPCMS16LEPlanar, 16, media.CodecPCMS16LE},
		{media.CodecPCMF32BE, 32, media.CodecPCMS32LE},
		{media.CodecPCMBluray, 24, media.CodecPCMS24LE},
		{media.CodecPCMDVD, 16, media.CodecPCMS16LE},
		{media.CodecPCMDVD, 32, media.CodecPCMS32LE},
		{media.CodecAAC, 0, media.CodecUnknown},
	}
	for _, tc := range cases {
		if got := PCMConversionFor(tc.src, tc.bits); got != tc.want {
			t.Errorf("PCMConversionFor(%v, %d) = %v, want %v", tc.src, tc.bits, got, tc.want)
		}
	}
}
