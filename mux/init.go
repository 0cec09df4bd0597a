package mux

import (
	"fmt"

	"github.com/zsiec/transmux/bitstream"
	"github.com/zsiec/transmux/codec"
	"github.com/zsiec/transmux/container"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
)

// initVideo registers the video stream. Extradata stays empty until
// the first encoder output supplies the parameter sets.
func (m *Muxer) initVideo() error {
	cfg := &m.cfg
	v := &track.Video{
		Codec:          cfg.VideoCodec,
		FPS:            cfg.FPS,
		CFR:            cfg.CFR,
		IsPAFF:         cfg.Interlaced,
		DTSUnavailable: cfg.DTSUnavailable,
		FirstKeyPTS:    cfg.InputFirstKeyPTS,
		Parser:         bitstream.Parser{HEVC: cfg.VideoCodec == media.CodecHEVC},
	}
	if cfg.VideoCodec != media.CodecH264 && cfg.VideoCodec != media.CodecHEVC {
		return fmt.Errorf("mux: unsupported video codec %s", cfg.VideoCodec)
	}
	if cfg.BFrames {
		v.BFrameDelay = 1
		if cfg.VideoCodec == media.CodecH264 && cfg.BPyramid {
			v.BFrameDelay++
		}
	}
	if cfg.CFR || cfg.VideoTimeBaseIn == (media.Rational{}) {
		v.TimeBaseIn = cfg.FPS.Inv()
	} else {
		v.TimeBaseIn = cfg.VideoTimeBaseIn
	}

	tb := cfg.FPS.Inv()
	if container.IsMatroska(m.writer.Name()) {
		tb = media.R(1, 1000)
	}
	if cfg.Interlaced {
		tb.Den *= 2
	}
	v.TimeBaseOut = tb

	idx, err := m.writer.AddStream(container.StreamInfo{
		Kind:      container.KindVideo,
		Codec:     cfg.VideoCodec,
		TimeBase:  tb,
		Width:     cfg.Width,
		Height:    cfg.Height,
		FrameRate: cfg.FPS,
	})
	if err != nil {
		return fmt.Errorf("mux: add video stream: %w", err)
	}
	v.StreamIndex = idx
	m.video = v
	m.log.Debug("video output initialized",
		"codec", cfg.VideoCodec.String(),
		"timebase", fmt.Sprintf("%d/%d", tb.Num, tb.Den),
		"paff", v.IsPAFF,
		"dts_unavailable", v.DTSUnavailable,
	)
	return nil
}

// initAudio builds one audio track: pass-through, PCM conversion, or
// the full transcode chain, per the stream config.
func (m *Muxer) initAudio(s *AudioStream) error {
	src := s.Source
	a := &track.Audio{
		In:                 src,
		IgnoreDecodeErrors: m.cfg.IgnoreDecodeError,
		LastPTSIn:          media.NoPTS,
		ChannelSelect:      s.ChannelSelect,
		ChannelOut:         s.ChannelOut,
	}

	pcmTarget := codec.PCMConversionFor(src.Codec, src.BitsPerRaw)
	needDecode := s.Encode || pcmTarget != media.CodecUnknown

	switch {
	case needDecode:
		if err := m.initAudioTranscode(a, s, pcmTarget); err != nil {
			return err
		}
	case src.Codec == media.CodecAAC && len(src.Extradata) == 0 && m.cfg.VideoCodec != media.CodecUnknown:
		// ADTS AAC muxed next to video needs ASC extradata.
		a.BSF = codec.NewADTSToASC()
		m.log.Debug("initialized aac adts-to-asc filter", "track", src.TrackID)
	}

	info := container.StreamInfo{
		Kind:     container.KindAudio,
		Metadata: copyMetadata(src.Metadata),
	}
	if a.Encoder != nil {
		info.Codec = a.Encoder.CodecID()
		info.SampleRate = a.Encoder.SampleRate()
		info.Channels = a.Encoder.Channels()
		info.FrameSize = a.Encoder.FrameSize()
	} else {
		info.Codec = src.Codec
		info.SampleRate = src.SampleRate
		info.Channels = src.Channels
		info.FrameSize = src.FrameSize
		info.Extradata = src.Extradata
	}
	info.TimeBase = media.R(1, int64(info.SampleRate))
	a.TimeBaseOut = info.TimeBase

	idx, err := m.writer.AddStream(info)
	if err != nil {
		return fmt.Errorf("mux: add audio stream %d.%d: %w", src.TrackID, src.SubStream, err)
	}
	a.StreamIndex = idx

	if m.cfg.VideoCodec != media.CodecUnknown && src.Delay != 0 {
		a.DelaySamples = media.Rescale(src.Delay, src.TimeBase, a.TimeBaseOut)
		a.LastPTSOut = a.DelaySamples
		m.log.Debug("audio start delay", "track", src.TrackID, "delay_samples", a.DelaySamples)
	}

	m.audio = append(m.audio, a)
	m.log.Debug("audio output initialized",
		"track", fmt.Sprintf("%d.%d", src.TrackID, src.SubStream),
		"codec", info.Codec.String(),
		"samplerate", info.SampleRate,
		"transcode", a.Transcode(),
	)
	return nil
}

// initAudioTranscode wires decoder, optional filter, resampler, and
// encoder for one track. Sub-streams borrow the primary's decoder and
// never own a filter.
func (m *Muxer) initAudioTranscode(a *track.Audio, s *AudioStream, pcmTarget media.CodecID) error {
	src := s.Source
	if src.SubStream > 0 {
		primary := m.audioByTriple(src.TrackID, 0)
		if primary == nil {
			return fmt.Errorf("mux: substream %d.%d has no primary stream", src.TrackID, src.SubStream)
		}
		a.Decoder = primary.Decoder
	} else {
		var err error
		switch {
		case s.NewDecoder != nil:
			a.Decoder, err = s.NewDecoder(src)
		case src.Codec.IsPCM():
			a.Decoder, err = codec.NewPCMDecoder(src.Codec, src.Channels, src.SampleRate, src.Layout)
		default:
			err = fmt.Errorf("no decoder for codec %s", src.Codec)
		}
		if err != nil {
			return fmt.Errorf("mux: audio decoder %d.%d: %w", src.TrackID, src.SubStream, err)
		}
		a.OwnsDecoder = true
	}

	decParams := codec.ResampleParams{
		Channels:   a.Decoder.Channels(),
		Layout:     a.Decoder.Layout(),
		SampleRate: a.Decoder.SampleRate(),
		Format:     a.Decoder.SampleFormat(),
	}

	// Encoder parameter auto-selection.
	encLayout := codec.AutoSelectChannelLayout(s.Caps.ChannelLayouts, decParams.Layout, decParams.Channels)
	if a.ChannelOut != 0 {
		encLayout = a.ChannelOut
	} else if a.ChannelSelect != 0 {
		encLayout = media.DefaultLayout(a.ChannelSelect.NbChannels())
	}
	encParams := codec.ResampleParams{
		Channels:   encLayout.NbChannels(),
		Layout:     encLayout,
		SampleRate: codec.AutoSelectSampleRate(s.Caps.SampleRates, decParams.SampleRate),
		Format:     codec.AutoSelectSampleFormat(s.Caps.SampleFormats, decParams.Format),
	}

	var err error
	switch {
	case pcmTarget != media.CodecUnknown:
		encParams.Format = pcmFrameFormat(pcmTarget)
		a.Encoder, err = codec.NewPCMEncoder(pcmTarget, encParams.Channels, encParams.SampleRate, encParams.Layout)
	case s.NewEncoder != nil:
		a.Encoder, err = s.NewEncoder(encParams)
	default:
		err = fmt.Errorf("no encoder factory for codec %s", src.Codec)
	}
	if err != nil {
		return fmt.Errorf("mux: audio encoder %d.%d: %w", src.TrackID, src.SubStream, err)
	}

	// Filter: primary stream only.
	if src.SubStream == 0 && s.Filter != nil {
		a.Filter = s.Filter
		a.FilterIn = decParams
	}

	// Resampler when anything differs or channels are remapped. PCM
	// targets included: the PCM encoder accepts only its own packed
	// format, so a format difference also goes through the resampler.
	encFmt := codec.ResampleParams{
		Channels:   a.Encoder.Channels(),
		Layout:     a.Encoder.Layout(),
		SampleRate: a.Encoder.SampleRate(),
		Format:     a.Encoder.SampleFormat(),
	}
	needResample := encFmt.SampleRate != decParams.SampleRate ||
		encFmt.Channels != decParams.Channels ||
		encFmt.Format != decParams.Format ||
		a.ChannelSelect != 0 || a.ChannelOut != 0
	if needResample {
		var mapping []int
		if a.ChannelSelect != 0 && a.ChannelSelect != decParams.Layout &&
			a.ChannelSelect.NbChannels() < decParams.Channels {
			mapping = codec.BuildChannelMapping(decParams.Layout, a.ChannelSelect, encFmt.Channels)
		}
		a.Resampler = codec.NewResampler(decParams, encFmt, mapping)
		m.log.Debug("audio resampler created",
			"track", fmt.Sprintf("%d.%d", src.TrackID, src.SubStream),
			"in_rate", decParams.SampleRate, "out_rate", encFmt.SampleRate,
			"in_ch", decParams.Channels, "out_ch", encFmt.Channels,
		)
	}
	a.ResampleIn = decParams
	return nil
}

// pcmFrameFormat is the frame sample format a PCM target codec encodes
// from.
func pcmFrameFormat(id media.CodecID) media.SampleFormat {
	switch id {
	case media.CodecPCMU8:
		return media.SampleFmtU8
	case media.CodecPCMS16LE:
		return media.SampleFmtS16
	case media.CodecPCMS24LE, media.CodecPCMS32LE:
		return media.SampleFmtS32
	}
	return media.SampleFmtS16
}

// initSubtitle builds one subtitle track, forcing the MP4-family codec
// conversions.
func (m *Muxer) initSubtitle(s *SubtitleStream) error {
	src := s.Source
	st := &track.Subtitle{In: src}

	codecOut := src.Codec
	if container.IsMP4Family(m.writer.Name()) {
		if src.Codec.IsTextSubtitle() {
			codecOut = media.CodecMovText
		}
	} else if src.Codec == media.CodecMovText {
		codecOut = media.CodecASS
	}

	if codecOut != src.Codec || codecOut == media.CodecMovText {
		st.Decoder = &codec.TextSubtitleDecoder{Codec: src.Codec}
		switch codecOut {
		case media.CodecMovText:
			st.Encoder = codec.MovTextEncoder{}
		case media.CodecASS:
			st.Encoder = codec.ASSEncoder{}
		default:
			return fmt.Errorf("mux: no subtitle encoder for %s", codecOut)
		}
	}

	// MOV timed text shares the video packet timebase; everything else
	// keeps the source timebase.
	if codecOut == media.CodecMovText && m.video != nil {
		st.TimeBaseOut = m.video.TimeBaseOut
	} else {
		st.TimeBaseOut = src.TimeBase
	}

	idx, err := m.writer.AddStream(container.StreamInfo{
		Kind:     container.KindSubtitle,
		Codec:    codecOut,
		TimeBase: st.TimeBaseOut,
		Metadata: copyMetadata(src.Metadata),
		Default:  src.TrackID == -1,
	})
	if err != nil {
		return fmt.Errorf("mux: add subtitle stream %d: %w", src.TrackID, err)
	}
	st.StreamIndex = idx
	m.subs = append(m.subs, st)
	m.log.Debug("subtitle output initialized",
		"track", src.TrackID,
		"codec_in", src.Codec.String(),
		"codec_out", codecOut.String(),
		"transcode", st.Transcode(),
	)
	return nil
}

// bindChapters applies trim remapping to chapter bounds, drops
// chapters that collapse, renumbers, and installs the list.
func (m *Muxer) bindChapters(chapters []Chapter) {
	var out []container.Chapter
	for _, ch := range chapters {
		start, err := m.adjuster.Adjust(ch.Start, ch.TimeBase, ch.TimeBase, true)
		if err != nil {
			continue
		}
		end, err := m.adjuster.Adjust(ch.End, ch.TimeBase, ch.TimeBase, true)
		if err != nil {
			continue
		}
		if start < 0 {
			start = 0
		}
		if start >= end {
			m.log.Debug("dropping collapsed chapter", "name", ch.Name)
			continue
		}
		md := copyMetadata(ch.Metadata)
		if md == nil {
			md = make(map[string]string)
		}
		md["title"] = ch.Name
		out = append(out, container.Chapter{
			ID:       len(out) + 1,
			Start:    start,
			End:      end,
			TimeBase: ch.TimeBase,
			Metadata: md,
		})
	}
	if len(out) > 0 {
		m.writer.SetChapters(out)
		m.log.Debug("chapters bound", "count", len(out))
	}
}

func copyMetadata(md map[string]string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
