package mux

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/transmux/bitstream"
	"github.com/zsiec/transmux/codec"
	"github.com/zsiec/transmux/container"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
	"github.com/zsiec/transmux/trim"
)

// Error taxonomy. ErrDroppedByTrim is re-exported from trim for
// callers that only import mux.
var (
	ErrMuxFatal    = errors.New("mux: fatal stream error")
	ErrMuxOpt      = errors.New("mux: unknown container option")
	ErrHeaderWrite = errors.New("mux: header write failed")
	ErrSink        = errors.New("mux: sink error")

	ErrDroppedByTrim = trim.ErrDroppedByTrim
)

// nativeTB is the internal clock all cross-track dts comparisons run
// in: microseconds.
var nativeTB = media.R(1, 1_000_000)

// aacBSFErrorThreshold is the consecutive-failure budget of the AAC
// bitstream filter before the stream is declared dead.
const aacBSFErrorThreshold = 30

// Free-list size class boundary: access units above this are "I-sized".
const largeFrameBytes = 10 * 1024

// AudioStream configures one audio output track (or sub-stream).
type AudioStream struct {
	Source track.StreamDesc

	// Encode selects the transcode chain. With it false the packets
	// copy through (PCM conversion may still force a transcode).
	Encode bool

	// NewDecoder and NewEncoder build the opaque codec components for
	// transcoded tracks. Nil factories fall back to the built-in PCM
	// components where the source codec allows, and fail otherwise.
	NewDecoder func(desc track.StreamDesc) (codec.Decoder, error)
	NewEncoder func(p codec.ResampleParams) (codec.Encoder, error)

	// Caps constrains encoder auto-selection.
	Caps codec.Capabilities

	// Filter is an optional audio filter (primary stream only).
	Filter codec.Filter

	// ChannelSelect picks source channels for this sub-stream;
	// ChannelOut overrides the encoder layout. Zero means unset.
	ChannelSelect media.ChannelLayout
	ChannelOut    media.ChannelLayout
}

// SubtitleStream configures one subtitle output track.
type SubtitleStream struct {
	Source track.StreamDesc
}

// Chapter is one input chapter prior to trim adjustment.
type Chapter struct {
	ID       int
	Start    int64
	End      int64
	TimeBase media.Rational
	Name     string
	Metadata map[string]string
}

// Config assembles a Muxer.
type Config struct {
	Writer container.Writer

	// Video. Codec CodecUnknown means audio-only output.
	VideoCodec       media.CodecID
	Width, Height    int
	FPS              media.Rational
	VideoTimeBaseIn  media.Rational
	CFR              bool
	Interlaced       bool
	BFrames          bool
	BPyramid         bool
	DTSUnavailable   bool
	InputFirstKeyPTS int64

	Audio     []AudioStream
	Subtitles []SubtitleStream
	Chapters  []Chapter
	Trim      trim.List

	// Options are forwarded to the container at header time. Unknown
	// keys are fatal.
	Options map[string]string

	// OutputThreads enables the output goroutine (0 or 1);
	// AudioThreads enables the process (≥1) and encode (≥2) goroutines.
	OutputThreads int
	AudioThreads  int

	// IgnoreDecodeError is the per-track decode error budget under
	// which silence is synthesized.
	IgnoreDecodeError int

	// ExtractCaptions mines CEA-608 captions from H.264 SEI NALUs into
	// the subtitle track at CaptionStream (an index into Subtitles).
	ExtractCaptions bool
	CaptionStream   int

	Logger *slog.Logger
}

// pktKind tags the in-flight record variant.
type pktKind int

const (
	kindPacket pktKind = iota
	kindFrame
)

// pktMuxData is the tagged packet/frame record hopping between stage
// queues. dts is in nativeTB for the interleaving loop.
type pktMuxData struct {
	kind      pktKind
	pkt       *media.Packet
	frame     *media.Frame
	audio     *track.Audio
	samples   int
	gotResult bool
	dts       int64
	fromHead  bool
	drain     bool // end-of-stream sentinel
}

// Muxer is the staging engine. Feed it encoded video with SubmitVideo
// and demuxed packets with WritePacket, then Close.
type Muxer struct {
	log    *slog.Logger
	writer container.Writer
	cfg    Config

	video    *track.Video
	audio    []*track.Audio
	subs     []*track.Subtitle
	adjuster trim.Adjuster

	headerWritten atomic.Bool
	headBuf       []pktMuxData

	streamErr atomic.Bool
	errOnce   sync.Once
	firstErr  error

	// Queues and events (output threading enabled only).
	outputEnabled  bool
	processEnabled bool
	encodeEnabled  bool

	qVideo     *queue[*bitstream.Buffer]
	qVideoFree [2]*queue[*bitstream.Buffer] // [0]=I-sized, [1]=P/B-sized
	qAudioOut  *queue[pktMuxData]
	qAudioProc *queue[pktMuxData]
	qAudioEnc  *queue[pktMuxData]

	evOutputAdded  event
	evProcAdded    event
	evEncAdded     event
	evOutputClosed event
	evProcClosed   event
	evEncClosed    event

	abortOutput atomic.Bool
	abortProc   atomic.Bool
	abortEnc    atomic.Bool

	wg sync.WaitGroup

	captions *captionExtractor

	closed bool
}

// New builds the muxer, registers all container streams, binds
// chapters, and starts the configured stage goroutines.
func New(cfg Config) (*Muxer, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("mux: config needs a container writer")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := &Muxer{
		log:    log.With("component", "muxer"),
		writer: cfg.Writer,
		cfg:    cfg,
	}
	m.adjuster = trim.Adjuster{FPS: cfg.FPS, List: cfg.Trim}
	if err := cfg.Trim.Validate(); err != nil {
		return nil, fmt.Errorf("mux: %w", err)
	}

	if cfg.VideoCodec != media.CodecUnknown {
		if err := m.initVideo(); err != nil {
			return nil, err
		}
	}
	for i := range cfg.Audio {
		if err := m.initAudio(&cfg.Audio[i]); err != nil {
			return nil, err
		}
	}
	for i := range cfg.Subtitles {
		if err := m.initSubtitle(&cfg.Subtitles[i]); err != nil {
			return nil, err
		}
	}
	m.bindChapters(cfg.Chapters)

	if cfg.ExtractCaptions && m.video != nil && m.video.Codec == media.CodecH264 {
		if cfg.CaptionStream < 0 || cfg.CaptionStream >= len(m.subs) {
			return nil, fmt.Errorf("mux: caption extraction needs a subtitle track, got index %d", cfg.CaptionStream)
		}
		m.captions = newCaptionExtractor(m.subs[cfg.CaptionStream])
	}

	// Audio-only outputs have no deferred extradata: write the header
	// now so packets flow immediately.
	if m.video == nil {
		if err := m.writeFileHeader(nil); err != nil {
			return nil, err
		}
		m.headerWritten.Store(true)
	}

	m.startThreads()
	return m, nil
}

// startThreads spins up the output, audio-process, and audio-encode
// goroutines according to the config.
func (m *Muxer) startThreads() {
	m.outputEnabled = m.cfg.OutputThreads > 0
	m.processEnabled = m.outputEnabled && m.cfg.AudioThreads > 0
	m.encodeEnabled = m.outputEnabled && m.cfg.AudioThreads > 1
	if !m.outputEnabled {
		return
	}

	videoCap := 64
	if m.cfg.FPS.Den > 0 {
		if c := int(m.cfg.FPS.Num * 4 / m.cfg.FPS.Den); c > videoCap {
			videoCap = c
		}
	}
	audioCap := 256 * max(1, len(m.audio))

	m.qVideo = newQueue[*bitstream.Buffer](videoCap)
	m.qVideoFree[0] = newQueue[*bitstream.Buffer](256)
	m.qVideoFree[1] = newQueue[*bitstream.Buffer](3840)
	m.qAudioOut = newQueue[pktMuxData](audioCap)
	m.evOutputAdded = newEvent()
	m.evOutputClosed = newEvent()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.outputLoop()
	}()

	if m.processEnabled {
		m.qAudioProc = newQueue[pktMuxData](512)
		m.evProcAdded = newEvent()
		m.evProcClosed = newEvent()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.processLoop()
		}()
		if m.encodeEnabled {
			m.qAudioEnc = newQueue[pktMuxData](512)
			m.evEncAdded = newEvent()
			m.evEncClosed = newEvent()
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.encodeLoop()
			}()
		}
	}
}

// fatal latches the stream error and remembers the first cause.
func (m *Muxer) fatal(err error) {
	m.errOnce.Do(func() { m.firstErr = err })
	m.streamErr.Store(true)
	m.log.Error("stream error", "error", err)
}

// Err returns the first fatal error, if any.
func (m *Muxer) Err() error {
	if m.streamErr.Load() {
		return m.firstErr
	}
	return nil
}

// writeToContainer funnels every packet write so sink failures latch
// the stream error exactly once.
func (m *Muxer) writeToContainer(pkt *media.Packet) {
	if m.streamErr.Load() {
		return
	}
	if err := m.writer.WritePacket(pkt); err != nil {
		m.fatal(fmt.Errorf("%w: %v", ErrSink, err))
	}
}

// Close drains the stages, writes the trailer (unless the stream
// errored), and releases the queues. It is the EOF path: callers send
// the drain sentinel via WritePacket(nil) before closing.
func (m *Muxer) Close() error {
	if m.closed {
		return m.Err()
	}
	m.closed = true

	if m.encodeEnabled {
		m.abortEnc.Store(true)
		for !m.evEncClosed.wait(100 * time.Millisecond) {
			m.evEncAdded.set()
		}
	}
	if m.processEnabled {
		m.abortProc.Store(true)
		for !m.evProcClosed.wait(100 * time.Millisecond) {
			m.evProcAdded.set()
		}
	}
	if m.outputEnabled {
		m.abortOutput.Store(true)
		for !m.evOutputClosed.wait(100 * time.Millisecond) {
			m.evOutputAdded.set()
		}
	}
	m.wg.Wait()

	if m.qVideo != nil {
		m.qVideo.close()
		m.qVideoFree[0].close()
		m.qVideoFree[1].close()
		m.qAudioOut.close()
	}
	if m.qAudioProc != nil {
		m.qAudioProc.close()
	}
	if m.qAudioEnc != nil {
		m.qAudioEnc.close()
	}

	if !m.streamErr.Load() && m.headerWritten.Load() {
		if err := m.writer.WriteTrailer(); err != nil {
			m.fatal(fmt.Errorf("%w: %v", ErrSink, err))
		}
	}
	return m.Err()
}

// audioByTriple finds the audio track for a (trackID, subStream) pair.
func (m *Muxer) audioByTriple(trackID, subStream int) *track.Audio {
	for _, a := range m.audio {
		if a.In.TrackID == trackID && a.In.SubStream == subStream {
			return a
		}
	}
	return nil
}

// audioForPacket resolves the track for an incoming packet by stream
// index and track id.
func (m *Muxer) audioForPacket(pkt *media.Packet) *track.Audio {
	for _, a := range m.audio {
		if a.In.Index == pkt.StreamIndex && a.In.TrackID == pkt.TrackID {
			return a
		}
	}
	return nil
}

// subForPacket resolves the subtitle track for an incoming packet.
func (m *Muxer) subForPacket(pkt *media.Packet) *track.Subtitle {
	for _, s := range m.subs {
		if s.In.Index == pkt.StreamIndex && s.In.TrackID == pkt.TrackID {
			return s
		}
	}
	return nil
}

// dtsThreshold is the interleaving window W in nativeTB units.
func (m *Muxer) dtsThreshold() int64 {
	if m.video == nil {
		return math.MaxInt64 / 4
	}
	fpsTB := m.cfg.FPS.Inv()
	w := media.Rescale(4, fpsTB, nativeTB)
	if w < 250_000 {
		w = 250_000
	}
	return w
}
