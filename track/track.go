// Package track holds the per-track mutable state the mux stages
// operate on: codec chains, cached conversion parameters, carry
// buffers, and error counters. Tracks are created at pipeline init and
// mutated only by the stage goroutine that owns them.
package track

import (
	"github.com/zsiec/transmux/bitstream"
	"github.com/zsiec/transmux/codec"
	"github.com/zsiec/transmux/media"
)

// StreamDesc identifies and describes one input elementary stream.
// The (Index, TrackID, SubStream) triple is stable for the run.
type StreamDesc struct {
	Index     int
	TrackID   int
	SubStream int

	Codec      media.CodecID
	TimeBase   media.Rational
	SampleRate int
	Channels   int
	Layout     media.ChannelLayout
	FrameSize  int
	BitsPerRaw int
	// BlockAlign rides along for decoders that need it (WMA family).
	BlockAlign int
	Extradata  []byte
	Metadata   map[string]string

	// Delay is the stream start delay in TimeBase units, folded into
	// DelaySamples when a video stream anchors the timeline.
	Delay int64
}

// Audio is the state of one audio output track (or sub-stream).
type Audio struct {
	In StreamDesc

	// Codec chain. Sub-streams borrow the primary's Decoder and have no
	// Filter (the primary's filtered frames fan out to them);
	// OwnsDecoder marks the primary.
	Decoder     codec.Decoder
	OwnsDecoder bool
	Filter      codec.Filter
	Resampler   *codec.Resampler
	Encoder     codec.Encoder
	BSF         codec.PacketFilter

	// Sub-stream channel routing.
	ChannelSelect media.ChannelLayout
	ChannelOut    media.ChannelLayout

	// Container binding.
	StreamIndex int
	TimeBaseOut media.Rational

	// Cached component inputs; drift against an arriving frame
	// triggers flush-and-reinit.
	FilterIn   codec.ResampleParams
	ResampleIn codec.ResampleParams

	// Carry state.
	DecodeRemainder []byte       // undecoded tail concatenated ahead of the next packet
	FilterPending   *media.Frame // partial frame awaiting coalescing with filter output
	Carry           *media.Frame // sub-frame_size remainder for encoder frame cutting

	// Counters.
	PacketsWritten     int
	SamplesOut         int64
	DelaySamples       int64
	LastPTSIn          int64
	LastPTSOut         int64
	BSFErrorStreak     int
	DecodeErrors       int
	IgnoreDecodeErrors int
	EncodeError        bool
}

// OutputSampleRate is the rate output timestamps are computed against.
func (a *Audio) OutputSampleRate() int {
	if a.Encoder != nil {
		return a.Encoder.SampleRate()
	}
	return a.In.SampleRate
}

// Transcode reports whether the track runs the decode chain.
func (a *Audio) Transcode() bool { return a.Decoder != nil }

// ResamplerResolved reports whether the cached resampler input side is
// complete enough to synthesize audio against.
func (a *Audio) ResamplerResolved() bool {
	return a.ResampleIn.Format != media.SampleFmtNone &&
		a.ResampleIn.SampleRate > 0 && a.ResampleIn.Channels > 0
}

// Subtitle is the state of one subtitle output track.
type Subtitle struct {
	In StreamDesc

	Decoder codec.SubtitleDecoder
	Encoder codec.SubtitleEncoder

	StreamIndex int
	TimeBaseOut media.Rational
}

// Transcode reports whether the track re-encodes instead of copying.
func (s *Subtitle) Transcode() bool { return s.Encoder != nil }

// Video is the state of the single video output track.
type Video struct {
	Codec  media.CodecID
	Parser bitstream.Parser

	FPS        media.Rational
	TimeBaseIn media.Rational // input pts timebase; fps-derived when CFR
	CFR        bool
	IsPAFF     bool

	BFrameDelay    int
	DTSUnavailable bool
	NextFPSBaseDTS int64
	FirstKeyPTS    int64

	StreamIndex int
	TimeBaseOut media.Rational

	ExtradataSet bool
}

// FieldsPerBuffer returns how many container packets one delivered
// access unit becomes.
func (v *Video) FieldsPerBuffer() int {
	if v.IsPAFF {
		return 2
	}
	return 1
}

// FPSTimebase returns the per-field timebase the dts counter runs in.
func (v *Video) FPSTimebase() media.Rational {
	tb := v.FPS.Inv()
	if v.IsPAFF {
		tb.Den *= 2
	}
	return tb
}

// InitDTSCounter seeds the synthesized-dts counter once the header is
// written and the b-frame delay is known.
func (v *Video) InitDTSCounter() {
	v.NextFPSBaseDTS = int64(0-v.BFrameDelay) * int64(1+boolToInt(v.IsPAFF))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
