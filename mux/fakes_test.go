package mux

import (
	"fmt"
	"sync"

	"github.com/zsiec/transmux/container"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
)

// fakeWriter records everything the muxer hands to the container.
type fakeWriter struct {
	mu         sync.Mutex
	name       string
	streams    []container.StreamInfo
	extradata  map[int][]byte
	chapters   []container.Chapter
	metadata   map[string]string
	headerOpts map[string]string
	header     bool
	trailer    bool
	packets    []*media.Packet
	knownOpts  map[string]bool
}

func newFakeWriter(name string) *fakeWriter {
	return &fakeWriter{
		name:      name,
		extradata: make(map[int][]byte),
		metadata:  make(map[string]string),
	}
}

func (w *fakeWriter) Name() string { return w.name }

func (w *fakeWriter) AddStream(info container.StreamInfo) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streams = append(w.streams, info)
	return len(w.streams) - 1, nil
}

func (w *fakeWriter) SetExtradata(idx int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extradata[idx] = append([]byte(nil), data...)
	return nil
}

func (w *fakeWriter) SetChapters(chapters []container.Chapter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chapters = chapters
}

func (w *fakeWriter) SetMetadata(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.metadata[key] = value
}

func (w *fakeWriter) WriteHeader(opts map[string]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.knownOpts != nil {
		for k := range opts {
			if !w.knownOpts[k] {
				return fmt.Errorf("%w: %q", container.ErrUnknownOption, k)
			}
		}
	}
	w.headerOpts = opts
	w.header = true
	return nil
}

func (w *fakeWriter) WritePacket(pkt *media.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.header {
		return fmt.Errorf("packet before header")
	}
	w.packets = append(w.packets, pkt.Clone())
	return nil
}

func (w *fakeWriter) WriteTrailer() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trailer = true
	return nil
}

// packetsFor returns the recorded packets of one stream index.
func (w *fakeWriter) packetsFor(idx int) []*media.Packet {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*media.Packet
	for _, p := range w.packets {
		if p.StreamIndex == idx {
			out = append(out, p)
		}
	}
	return out
}

// fakeDecoder yields s16 mono-or-stereo frames whose sample count is
// the packet duration. failFirst makes the first N calls error.
type fakeDecoder struct {
	channels   int
	sampleRate int
	failFirst  int
	calls      int
}

func (d *fakeDecoder) SampleRate() int                  { return d.sampleRate }
func (d *fakeDecoder) Channels() int                    { return d.channels }
func (d *fakeDecoder) Layout() media.ChannelLayout      { return media.DefaultLayout(d.channels) }
func (d *fakeDecoder) SampleFormat() media.SampleFormat { return media.SampleFmtS16 }
func (d *fakeDecoder) Flush() (*media.Frame, error)     { return nil, nil }

func (d *fakeDecoder) Decode(data []byte, duration int64, tb media.Rational) (*media.Frame, int, error) {
	d.calls++
	if d.calls <= d.failFirst {
		return nil, 0, fmt.Errorf("synthetic decode failure %d", d.calls)
	}
	n := int(media.Rescale(duration, tb, media.R(1, int64(d.sampleRate))))
	f := media.NewFrame(media.SampleFmtS16, d.Layout(), d.channels, d.sampleRate, n)
	for i := range f.Data[0] {
		f.Data[0][i] = 0x55 // non-silence marker
	}
	return f, len(data), nil
}

// fakeEncoder consumes fixed-size frames and emits one packet per
// call, tracking every frame size it saw.
type fakeEncoder struct {
	frameSize  int
	channels   int
	sampleRate int
	sizes      []int
}

func (e *fakeEncoder) FrameSize() int                   { return e.frameSize }
func (e *fakeEncoder) SampleRate() int                  { return e.sampleRate }
func (e *fakeEncoder) Channels() int                    { return e.channels }
func (e *fakeEncoder) Layout() media.ChannelLayout      { return media.DefaultLayout(e.channels) }
func (e *fakeEncoder) SampleFormat() media.SampleFormat { return media.SampleFmtS16 }
func (e *fakeEncoder) CodecID() media.CodecID           { return media.CodecAAC }

func (e *fakeEncoder) Encode(frame *media.Frame) (*media.Packet, error) {
	if frame == nil {
		return nil, nil
	}
	e.sizes = append(e.sizes, frame.NbSamples)
	return &media.Packet{
		Data:     append([]byte(nil), frame.Data[0]...),
		Duration: int64(frame.NbSamples),
		TimeBase: media.R(1, int64(e.sampleRate)),
		Key:      true,
	}, nil
}

// pcmDesc builds a pass-through PCM stream description.
func pcmDesc(index, trackID int, rate, channels int) track.StreamDesc {
	return track.StreamDesc{
		Index:      index,
		TrackID:    trackID,
		Codec:      media.CodecPCMS16LE,
		TimeBase:   media.R(1, int64(rate)),
		SampleRate: rate,
		Channels:   channels,
		Layout:     media.DefaultLayout(channels),
	}
}

// Test NAL builders shared by the video-path tests.
func testNALU(header byte, payload ...byte) []byte {
	out := []byte{0, 0, 0, 1, header}
	return append(out, payload...)
}

func testJoin(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	testSPS = testNALU(0x67, 0x42, 0x00, 0x1E, 0xFB, 0x80)
	testPPS = testNALU(0x68, 0xCE, 0x38, 0x80)
	testIDR = testNALU(0x65, 0xB0, 0x00)
	testP   = testNALU(0x41, 0xC0, 0x00)
	testAUD = testNALU(0x09, 0xF0)
)

// keyframeAU is a complete first access unit carrying headers.
func keyframeAU() []byte { return testJoin(testAUD, testSPS, testPPS, testIDR) }
