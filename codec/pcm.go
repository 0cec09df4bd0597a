package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zsiec/transmux/media"
)

// pcmLayout describes how a PCM codec stores its samples on the wire.
type pcmLayout struct {
	format media.SampleFormat
	be     bool
	planar bool
	// byte width on the wire; differs from the frame format for 24-bit
	// samples, which widen to s32.
	wireBytes int
}

func pcmWireLayout(id media.CodecID) (pcmLayout, bool) {
	switch id {
	case media.CodecPCMU8:
		return pcmLayout{format: media.SampleFmtU8, wireBytes: 1}, true
	case media.CodecPCMS8Planar:
		return pcmLayout{format: media.SampleFmtU8, wireBytes: 1, planar: true}, true
	case media.CodecPCMS16LE:
		return pcmLayout{format: media.SampleFmtS16, wireBytes: 2}, true
	case media.CodecPCMS16BE:
		return pcmLayout{format: media.SampleFmtS16, wireBytes: 2, be: true}, true
	case media.CodecPCMS16LEPlanar:
		return pcmLayout{format: media.SampleFmtS16, wireBytes: 2, planar: true}, true
	case media.CodecPCMS16BEPlanar:
		return pcmLayout{format: media.SampleFmtS16, wireBytes: 2, be: true, planar: true}, true
	case media.CodecPCMS24LE:
		return pcmLayout{format: media.SampleFmtS32, wireBytes: 3}, true
	case media.CodecPCMS24BE:
		return pcmLayout{format: media.SampleFmtS32, wireBytes: 3, be: true}, true
	case media.CodecPCMS24LEPlanar:
		return pcmLayout{format: media.SampleFmtS32, wireBytes: 3, planar: true}, true
	case media.CodecPCMS32LE:
		return pcmLayout{format: media.SampleFmtS32, wireBytes: 4}, true
	case media.CodecPCMS32BE:
		return pcmLayout{format: media.SampleFmtS32, wireBytes: 4, be: true}, true
	case media.CodecPCMS32LEPlanar:
		return pcmLayout{format: media.SampleFmtS32, wireBytes: 4, planar: true}, true
	case media.CodecPCMF32LE:
		return pcmLayout{format: media.SampleFmtFLT, wireBytes: 4}, true
	case media.CodecPCMF32BE:
		return pcmLayout{format: media.SampleFmtFLT, wireBytes: 4, be: true}, true
	case media.CodecPCMF64LE:
		return pcmLayout{format: media.SampleFmtDBL, wireBytes: 8}, true
	case media.CodecPCMF64BE:
		return pcmLayout{format: media.SampleFmtDBL, wireBytes: 8, be: true}, true
	}
	return pcmLayout{}, false
}

// PCMDecoder unpacks raw PCM packets into packed native-endian frames.
type PCMDecoder struct {
	layout     pcmLayout
	channels   int
	chLayout   media.ChannelLayout
	sampleRate int
}

// NewPCMDecoder builds a decoder for one of the supported PCM
// variants. DVD/Bluray wrapper formats carry framing this decoder does
// not understand and are rejected.
func NewPCMDecoder(id media.CodecID, channels, sampleRate int, chLayout media.ChannelLayout) (*PCMDecoder, error) {
	wire, ok := pcmWireLayout(id)
	if !ok {
		return nil, fmt.Errorf("pcm decoder: unsupported codec %s", id)
	}
	if chLayout == 0 {
		chLayout = media.DefaultLayout(channels)
	}
	return &PCMDecoder{layout: wire, channels: channels, chLayout: chLayout, sampleRate: sampleRate}, nil
}

func (d *PCMDecoder) SampleRate() int                  { return d.sampleRate }
func (d *PCMDecoder) Channels() int                    { return d.channels }
func (d *PCMDecoder) Layout() media.ChannelLayout      { return d.chLayout }
func (d *PCMDecoder) SampleFormat() media.SampleFormat { return d.layout.format }

// Flush has nothing buffered; PCM decodes packet-by-packet.
func (d *PCMDecoder) Flush() (*media.Frame, error) { return nil, nil }

// Decode unpacks one packet. Trailing bytes that do not fill a whole
// sample unit are left unconsumed.
func (d *PCMDecoder) Decode(data []byte, duration int64, tb media.Rational) (*media.Frame, int, error) {
	unit := d.layout.wireBytes * d.channels
	n := len(data) / unit
	if n == 0 {
		return nil, 0, nil
	}
	frame := media.NewFrame(d.layout.format, d.chLayout, d.channels, d.sampleRate, n)
	out := frame.Data[0]
	outBytes := d.layout.format.BytesPerSample()

	pos := 0
	for s := 0; s < n; s++ {
		for ch := 0; ch < d.channels; ch++ {
			var src []byte
			if d.layout.planar {
				plane := ch * n * d.layout.wireBytes
				src = data[plane+s*d.layout.wireBytes:]
			} else {
				src = data[pos:]
				pos += d.layout.wireBytes
			}
			dst := out[(s*d.channels+ch)*outBytes:]
			decodePCMSample(dst, src, d.layout)
		}
	}
	return frame, n * unit, nil
}

func decodePCMSample(dst, src []byte, l pcmLayout) {
	switch l.wireBytes {
	case 1:
		dst[0] = src[0]
	case 2:
		v := binary.LittleEndian.Uint16(src)
		if l.be {
			v = binary.BigEndian.Uint16(src)
		}
		binary.LittleEndian.PutUint16(dst, v)
	case 3:
		var v uint32
		if l.be {
			v = uint32(src[0])<<24 | uint32(src[1])<<16 | uint32(src[2])<<8
		} else {
			v = uint32(src[2])<<24 | uint32(src[1])<<16 | uint32(src[0])<<8
		}
		binary.LittleEndian.PutUint32(dst, v)
	case 4:
		v := binary.LittleEndian.Uint32(src)
		if l.be {
			v = binary.BigEndian.Uint32(src)
		}
		binary.LittleEndian.PutUint32(dst, v)
	case 8:
		v := binary.LittleEndian.Uint64(src)
		if l.be {
			v = binary.BigEndian.Uint64(src)
		}
		binary.LittleEndian.PutUint64(dst, v)
	}
}

// PCMEncoder packs frames into a little-endian PCM packet stream.
// FrameSize is zero: any slice length encodes in one call.
type PCMEncoder struct {
	id         media.CodecID
	format     media.SampleFormat
	wireBytes  int
	channels   int
	chLayout   media.ChannelLayout
	sampleRate int
}

// NewPCMEncoder builds an encoder for a little-endian PCM target codec.
func NewPCMEncoder(id media.CodecID, channels, sampleRate int, chLayout media.ChannelLayout) (*PCMEncoder, error) {
	wire, ok := pcmWireLayout(id)
	if !ok || wire.be || wire.planar {
		return nil, fmt.Errorf("pcm encoder: unsupported codec %s", id)
	}
	if chLayout == 0 {
		chLayout = media.DefaultLayout(channels)
	}
	return &PCMEncoder{
		id:         id,
		format:     wire.format,
		wireBytes:  wire.wireBytes,
		channels:   channels,
		chLayout:   chLayout,
		sampleRate: sampleRate,
	}, nil
}

func (e *PCMEncoder) FrameSize() int                   { return 0 }
func (e *PCMEncoder) SampleRate() int                  { return e.sampleRate }
func (e *PCMEncoder) Channels() int                    { return e.channels }
func (e *PCMEncoder) Layout() media.ChannelLayout      { return e.chLayout }
func (e *PCMEncoder) SampleFormat() media.SampleFormat { return e.format }
func (e *PCMEncoder) CodecID() media.CodecID           { return e.id }

// Encode packs one frame. The frame must already be in the encoder's
// packed sample format (the resampler upstream guarantees this).
// A nil frame drains nothing; PCM holds no state.
func (e *PCMEncoder) Encode(frame *media.Frame) (*media.Packet, error) {
	if frame == nil {
		return nil, nil
	}
	if frame.Format != e.format || frame.Format.IsPlanar() {
		return nil, fmt.Errorf("pcm encoder: frame format %d does not match encoder format %d", frame.Format, e.format)
	}
	inBytes := frame.Format.BytesPerSample()
	src := frame.Data[0]
	out := make([]byte, frame.NbSamples*e.channels*e.wireBytes)
	if e.wireBytes == inBytes {
		copy(out, src[:len(out)])
	} else {
		// 24-bit target: drop the low byte of each widened s32 sample.
		for i := 0; i < frame.NbSamples*e.channels; i++ {
			v := binary.LittleEndian.Uint32(src[i*4:])
			out[i*3] = byte(v >> 8)
			out[i*3+1] = byte(v >> 16)
			out[i*3+2] = byte(v >> 24)
		}
	}
	return &media.Packet{
		Data:     out,
		PTS:      frame.PTS,
		DTS:      frame.PTS,
		Duration: int64(frame.NbSamples),
		TimeBase: media.R(1, int64(e.sampleRate)),
		Key:      true,
	}, nil
}

// FloatToS32 converts float samples to s32 in place of a resample step
// when a float wire format targets an integer PCM codec.
func FloatToS32(f *media.Frame) *media.Frame {
	if f.Format != media.SampleFmtFLT && f.Format != media.SampleFmtDBL {
		return f
	}
	out := media.NewFrame(media.SampleFmtS32, f.Layout, f.Channels, f.SampleRate, f.NbSamples)
	out.PTS = f.PTS
	src := f.Data[0]
	dst := out.Data[0]
	n := f.NbSamples * f.Channels
	for i := 0; i < n; i++ {
		var v float64
		if f.Format == media.SampleFmtFLT {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
		} else {
			v = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
		}
		s := int64(v * (1 << 31))
		if s > math.MaxInt32 {
			s = math.MaxInt32
		} else if s < math.MinInt32 {
			s = math.MinInt32
		}
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(s)))
	}
	return out
}
