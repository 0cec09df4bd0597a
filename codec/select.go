package codec

import (
	"math"

	"github.com/zsiec/transmux/media"
)

// AutoSelectChannelLayout picks an output layout for an encoder.
// When the encoder offers a layout list, the first entry matching the
// source channel count wins, falling back to the list head; with no
// list, the conventional layout ladder for the source count is used.
func AutoSelectChannelLayout(offered []media.ChannelLayout, srcLayout media.ChannelLayout, srcChannels int) media.ChannelLayout {
	if srcLayout != 0 {
		srcChannels = srcLayout.NbChannels()
	}
	if len(offered) == 0 {
		if l := media.DefaultLayout(srcChannels); l != 0 {
			return l
		}
		return srcLayout
	}
	for _, l := range offered {
		if l.NbChannels() == srcChannels {
			return l
		}
	}
	return offered[0]
}

// AutoSelectSampleRate returns the source rate if the encoder offers it
// (or offers no list), otherwise the offered rate minimizing the
// relative error |1 - rate/src|.
func AutoSelectSampleRate(offered []int, src int) int {
	if len(offered) == 0 {
		return src
	}
	for _, r := range offered {
		if r == src {
			return src
		}
	}
	best := offered[0]
	bestDiff := math.Abs(1 - float64(offered[0])/float64(src))
	for _, r := range offered[1:] {
		if diff := math.Abs(1 - float64(r)/float64(src)); diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best
}

// autoSelectScanOrder is the quality-descending scan order used when
// the source format is not directly offered.
var autoSelectScanOrder = []media.SampleFormat{
	media.SampleFmtDBLP, media.SampleFmtDBL,
	media.SampleFmtFLTP, media.SampleFmtFLT,
	media.SampleFmtS32P, media.SampleFmtS32,
	media.SampleFmtS16P, media.SampleFmtS16,
	media.SampleFmtU8P, media.SampleFmtU8,
}

// AutoSelectSampleFormat keeps the source format if the encoder offers
// it; otherwise it scans formats from the source's quality tier
// downward and returns the first one offered, falling back to the
// encoder's first offered format.
func AutoSelectSampleFormat(offered []media.SampleFormat, src media.SampleFormat) media.SampleFormat {
	if len(offered) == 0 {
		return src
	}
	if src == media.SampleFmtNone {
		return offered[0]
	}
	has := func(f media.SampleFormat) bool {
		for _, o := range offered {
			if o == f {
				return true
			}
		}
		return false
	}
	if has(src) {
		return src
	}
	start := 0
	for i, f := range autoSelectScanOrder {
		if f.QualityTier() == src.QualityTier() {
			start = i
			break
		}
	}
	for _, f := range autoSelectScanOrder[start:] {
		if has(f) {
			return f
		}
	}
	return offered[0]
}

// PCMConversionFor returns the container-friendly PCM codec a source
// PCM variant must be converted to, or CodecUnknown when the source can
// be copied as-is. Wrapper formats without a fixed mapping pick their
// target from the declared raw sample depth.
func PCMConversionFor(src media.CodecID, bitsPerRawSample int) media.CodecID {
	switch src {
	case media.CodecPCMS8Planar:
		return media.CodecPCMU8
	case media.CodecPCMS16LEPlanar, media.CodecPCMS16BEPlanar, media.CodecPCMS16BE:
		return media.CodecPCMS16LE
	case media.CodecPCMS24LEPlanar, media.CodecPCMS24BE:
		return media.CodecPCMS24LE
	case media.CodecPCMS32LEPlanar, media.CodecPCMS32BE, media.CodecPCMF32BE, media.CodecPCMF64BE:
		return media.CodecPCMS32LE
	case media.CodecPCMDVD, media.CodecPCMBluray:
		switch bitsPerRawSample {
		case 32:
			return media.CodecPCMS32LE
		case 24:
			return media.CodecPCMS24LE
		default:
			return media.CodecPCMS16LE
		}
	}
	return media.CodecUnknown
}
