// Package codec defines the opaque component contracts the mux
// pipeline drives — decoder, encoder, resampler, filter, and packet
// (bitstream) filter — together with the concrete pure-Go
// implementations the pipeline ships: PCM codecs, the AAC ADTS→ASC
// filter, and a channel-mapping resampler.
package codec

import (
	"errors"

	"github.com/zsiec/transmux/media"
)

// ErrAgain signals that a component consumed its input but has no
// output yet; the caller retries with more data.
var ErrAgain = errors.New("output not ready")

// Decoder turns compressed packets into raw audio frames. Decode may
// consume fewer bytes than offered; the caller re-submits the rest.
// Flush drains buffered frames at end of stream, returning nil when dry.
type Decoder interface {
	Decode(data []byte, duration int64, tb media.Rational) (frame *media.Frame, consumed int, err error)
	Flush() (*media.Frame, error)
	SampleRate() int
	Channels() int
	Layout() media.ChannelLayout
	SampleFormat() media.SampleFormat
}

// Encoder turns raw audio frames into compressed packets. A nil frame
// drains the encoder; a nil, nil return means no packet is ready.
// FrameSize is the exact sample count the encoder demands per call,
// or 0 when any size is accepted.
type Encoder interface {
	Encode(frame *media.Frame) (*media.Packet, error)
	FrameSize() int
	SampleRate() int
	Channels() int
	Layout() media.ChannelLayout
	SampleFormat() media.SampleFormat
	CodecID() media.CodecID
}

// Capabilities enumerates what an encoder implementation can accept.
// Empty slices mean "anything".
type Capabilities struct {
	ChannelLayouts []media.ChannelLayout
	SampleRates    []int
	SampleFormats  []media.SampleFormat
}

// Filter is a 1-in/1-out audio frame filter. Push submits a frame;
// Drain returns ready output frames until it reports nil, nil.
type Filter interface {
	Push(*media.Frame) error
	Drain() (*media.Frame, error)
	Close() error
}

// PacketFilter transforms packets in place of a decode step (a
// stream-level bitstream filter). Filter returns ErrAgain when the
// packet was absorbed without output.
type PacketFilter interface {
	Filter(pkt *media.Packet) (*media.Packet, error)
	Extradata() []byte
}
