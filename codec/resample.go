package codec

import (
	"encoding/binary"
	"math"

	"github.com/zsiec/transmux/media"
)

// ResampleParams pins one side of a resampler conversion.
type ResampleParams struct {
	Channels   int
	Layout     media.ChannelLayout
	SampleRate int
	Format     media.SampleFormat
}

// Resampler converts frames between sample formats, channel layouts,
// and sample rates. Format conversion goes through a float64
// intermediate; rate conversion is linear interpolation. An optional
// channel mapping (input channel index per output channel, -1 for
// silence) implements sub-stream channel selection.
type Resampler struct {
	In      ResampleParams
	Out     ResampleParams
	Mapping []int

	// fractional read position carried between calls for rate conversion
	srcPos float64
}

// NewResampler builds a resampler; a nil mapping routes channels
// positionally (truncating or repeating the last input channel).
func NewResampler(in, out ResampleParams, mapping []int) *Resampler {
	return &Resampler{In: in, Out: out, Mapping: mapping}
}

// BuildChannelMapping derives the per-output-channel source index for a
// sub-stream channel selector: for each input channel position, the
// index of the selected speaker within the source layout, falling back
// to the source's own channels when the selector names a speaker the
// source does not carry.
func BuildChannelMapping(srcLayout, selectLayout media.ChannelLayout, channels int) []int {
	mapping := make([]int, channels)
	selectCount := selectLayout.NbChannels()
	for in := 0; in < channels; in++ {
		pick := in
		if pick > selectCount-1 {
			pick = selectCount - 1
		}
		ch := selectLayout.Channel(pick)
		idx := srcLayout.Index(ch)
		if idx < 0 {
			n := in
			if max := srcLayout.NbChannels() - 1; n > max {
				n = max
			}
			ch = srcLayout.Channel(n)
			idx = srcLayout.Index(ch)
		}
		mapping[in] = idx
	}
	return mapping
}

// Convert resamples one frame. A nil frame drains the converter;
// linear interpolation carries no tail, so drain returns nil. A zero
// output sample count also returns nil.
func (r *Resampler) Convert(frame *media.Frame) (*media.Frame, error) {
	if frame == nil {
		return nil, nil
	}
	// Promote to float64 per input channel.
	in := toFloat(frame)

	// Channel routing.
	outCh := r.Out.Channels
	routed := make([][]float64, outCh)
	for c := 0; c < outCh; c++ {
		src := c
		if r.Mapping != nil {
			if c < len(r.Mapping) {
				src = r.Mapping[c]
			} else {
				src = -1
			}
		}
		if src < 0 || src >= len(in) {
			if src >= len(in) && len(in) > 0 {
				src = len(in) - 1
			} else {
				routed[c] = make([]float64, frame.NbSamples)
				continue
			}
		}
		routed[c] = in[src]
	}

	// Rate conversion.
	if r.In.SampleRate != r.Out.SampleRate && r.In.SampleRate > 0 {
		ratio := float64(r.Out.SampleRate) / float64(r.In.SampleRate)
		nOut := int(float64(frame.NbSamples)*ratio + r.srcPos)
		if nOut == 0 {
			return nil, nil
		}
		step := 1 / ratio
		out := make([][]float64, outCh)
		for c := range routed {
			out[c] = make([]float64, nOut)
			pos := -r.srcPos * step
			for i := 0; i < nOut; i++ {
				out[c][i] = lerpSample(routed[c], pos)
				pos += step
			}
		}
		r.srcPos = float64(frame.NbSamples)*ratio + r.srcPos - float64(nOut)
		routed = out
	}

	n := 0
	if len(routed) > 0 {
		n = len(routed[0])
	}
	if n == 0 {
		return nil, nil
	}
	out := fromFloat(routed, n, r.Out)
	out.PTS = frame.PTS
	return out, nil
}

func lerpSample(s []float64, pos float64) float64 {
	if len(s) == 0 {
		return 0
	}
	if pos <= 0 {
		return s[0]
	}
	i := int(pos)
	if i >= len(s)-1 {
		return s[len(s)-1]
	}
	frac := pos - float64(i)
	return s[i]*(1-frac) + s[i+1]*frac
}

// toFloat expands a frame into one float64 slice per channel.
func toFloat(f *media.Frame) [][]float64 {
	out := make([][]float64, f.Channels)
	bps := f.Format.BytesPerSample()
	for c := 0; c < f.Channels; c++ {
		out[c] = make([]float64, f.NbSamples)
	}
	read := func(b []byte) float64 {
		switch f.Format.Packed() {
		case media.SampleFmtU8:
			return (float64(b[0]) - 128) / 128
		case media.SampleFmtS16:
			return float64(int16(binary.LittleEndian.Uint16(b))) / (1 << 15)
		case media.SampleFmtS32:
			return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
		case media.SampleFmtFLT:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case media.SampleFmtDBL:
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return 0
	}
	if f.Format.IsPlanar() {
		for c := 0; c < f.Channels; c++ {
			plane := f.Data[c]
			for i := 0; i < f.NbSamples; i++ {
				out[c][i] = read(plane[i*bps:])
			}
		}
	} else {
		data := f.Data[0]
		for i := 0; i < f.NbSamples; i++ {
			for c := 0; c < f.Channels; c++ {
				out[c][i] = read(data[(i*f.Channels+c)*bps:])
			}
		}
	}
	return out
}

// fromFloat packs per-channel float64 slices into a frame with the
// given output parameters.
func fromFloat(ch [][]float64, n int, p ResampleParams) *media.Frame {
	f := media.NewFrame(p.Format, p.Layout, p.Channels, p.SampleRate, n)
	bps := p.Format.BytesPerSample()
	write := func(b []byte, v float64) {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		switch p.Format.Packed() {
		case media.SampleFmtU8:
			b[0] = byte(v*127 + 128)
		case media.SampleFmtS16:
			s := int64(v * (1 << 15))
			if s > math.MaxInt16 {
				s = math.MaxInt16
			}
			binary.LittleEndian.PutUint16(b, uint16(int16(s)))
		case media.SampleFmtS32:
			s := int64(v * (1 << 31))
			if s > math.MaxInt32 {
				s = math.MaxInt32
			}
			binary.LittleEndian.PutUint32(b, uint32(int32(s)))
		case media.SampleFmtFLT:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case media.SampleFmtDBL:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	if p.Format.IsPlanar() {
		for c := 0; c < p.Channels; c++ {
			plane := f.Data[c]
			for i := 0; i < n; i++ {
				write(plane[i*bps:], ch[c][i])
			}
		}
	} else {
		data := f.Data[0]
		for i := 0; i < n; i++ {
			for c := 0; c < p.Channels; c++ {
				write(data[(i*p.Channels+c)*bps:], ch[c][i])
			}
		}
	}
	return f
}
