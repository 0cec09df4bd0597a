package media

// SampleFormat identifies the in-memory layout of decoded audio samples.
// The zero value means "not yet resolved"; stages must not synthesize
// audio against an unresolved format.
type SampleFormat int

const (
	SampleFmtNone SampleFormat = iota
	SampleFmtU8
	SampleFmtS16
	SampleFmtS32
	SampleFmtFLT
	SampleFmtDBL
	SampleFmtU8P
	SampleFmtS16P
	SampleFmtS32P
	SampleFmtFLTP
	SampleFmtDBLP
)

// BytesPerSample returns the storage size of one sample in this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFmtU8, SampleFmtU8P:
		return 1
	case SampleFmtS16, SampleFmtS16P:
		return 2
	case SampleFmtS32, SampleFmtS32P, SampleFmtFLT, SampleFmtFLTP:
		return 4
	case SampleFmtDBL, SampleFmtDBLP:
		return 8
	}
	return 0
}

// IsPlanar reports whether each channel occupies its own plane.
func (f SampleFormat) IsPlanar() bool {
	switch f {
	case SampleFmtU8P, SampleFmtS16P, SampleFmtS32P, SampleFmtFLTP, SampleFmtDBLP:
		return true
	}
	return false
}

// Packed returns the interleaved counterpart of a planar format.
func (f SampleFormat) Packed() SampleFormat {
	switch f {
	case SampleFmtU8P:
		return SampleFmtU8
	case SampleFmtS16P:
		return SampleFmtS16
	case SampleFmtS32P:
		return SampleFmtS32
	case SampleFmtFLTP:
		return SampleFmtFLT
	case SampleFmtDBLP:
		return SampleFmtDBL
	}
	return f
}

// QualityTier ranks formats so auto-selection can pick an equal-quality
// substitute: dbl > flt > s32 > s16 > u8.
func (f SampleFormat) QualityTier() int {
	switch f {
	case SampleFmtDBL, SampleFmtDBLP:
		return 8
	case SampleFmtFLT, SampleFmtFLTP:
		return 6
	case SampleFmtS32, SampleFmtS32P:
		return 4
	case SampleFmtS16, SampleFmtS16P:
		return 2
	case SampleFmtU8, SampleFmtU8P:
		return 1
	}
	return 0
}

// Frame is one decoded audio frame. Planar formats use one entry in
// Data per channel; packed formats use Data[0] only.
type Frame struct {
	Data       [][]byte
	NbSamples  int
	Channels   int
	Layout     ChannelLayout
	SampleRate int
	Format     SampleFormat
	PTS        int64
}

// NewFrame allocates a zero-filled frame for the given parameters.
func NewFrame(format SampleFormat, layout ChannelLayout, channels, sampleRate, nbSamples int) *Frame {
	f := &Frame{
		NbSamples:  nbSamples,
		Channels:   channels,
		Layout:     layout,
		SampleRate: sampleRate,
		Format:     format,
		PTS:        NoPTS,
	}
	planes, planeSize := f.planeGeometry(nbSamples)
	f.Data = make([][]byte, planes)
	for i := range f.Data {
		f.Data[i] = make([]byte, planeSize)
	}
	return f
}

// planeGeometry returns the plane count and per-plane byte size for
// nbSamples samples in the frame's format.
func (f *Frame) planeGeometry(nbSamples int) (planes, planeSize int) {
	bps := f.Format.BytesPerSample()
	if f.Format.IsPlanar() {
		return f.Channels, nbSamples * bps
	}
	return 1, nbSamples * bps * f.Channels
}

// BytesPerSampleUnit returns the byte stride of one sample position:
// one sample for planar formats, one sample across all channels for
// packed formats.
func (f *Frame) BytesPerSampleUnit() int {
	bps := f.Format.BytesPerSample()
	if f.Format.IsPlanar() {
		return bps
	}
	return bps * f.Channels
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = make([][]byte, len(f.Data))
	for i, d := range f.Data {
		c.Data[i] = append([]byte(nil), d...)
	}
	return &c
}

// Concat returns a new frame holding a's samples followed by b's.
// Both frames must share format, layout, and sample rate.
func Concat(a, b *Frame) *Frame {
	out := NewFrame(a.Format, a.Layout, a.Channels, a.SampleRate, a.NbSamples+b.NbSamples)
	out.PTS = a.PTS
	unit := a.BytesPerSampleUnit()
	for i := range out.Data {
		copy(out.Data[i], a.Data[i][:a.NbSamples*unit])
		copy(out.Data[i][a.NbSamples*unit:], b.Data[i][:b.NbSamples*unit])
	}
	return out
}

// Slice returns a new frame holding samples [from, from+n) of f.
func (f *Frame) Slice(from, n int) *Frame {
	out := NewFrame(f.Format, f.Layout, f.Channels, f.SampleRate, n)
	out.PTS = f.PTS
	unit := f.BytesPerSampleUnit()
	for i := range out.Data {
		copy(out.Data[i], f.Data[i][from*unit:(from+n)*unit])
	}
	return out
}

// Silence returns a frame of silent samples. For unsigned 8-bit formats
// silence is the 0x80 midpoint; all other formats are zero-filled.
func Silence(format SampleFormat, layout ChannelLayout, channels, sampleRate, nbSamples int) *Frame {
	f := NewFrame(format, layout, channels, sampleRate, nbSamples)
	if format == SampleFmtU8 || format == SampleFmtU8P {
		for _, plane := range f.Data {
			for i := range plane {
				plane[i] = 0x80
			}
		}
	}
	return f
}
