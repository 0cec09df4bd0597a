package mux

import (
	"fmt"

	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
)

// subtitleWritePacket remaps a subtitle packet onto the trimmed
// timeline and either copies it through or routes it into the
// transcode path. Packets inside trimmed ranges vanish silently.
func (m *Muxer) subtitleWritePacket(pkt *media.Packet) {
	s := m.subForPacket(pkt)
	if s == nil {
		m.fatal(fmt.Errorf("%w: no track for subtitle packet stream=%d track=%d", ErrMuxFatal, pkt.StreamIndex, pkt.TrackID))
		return
	}

	// Shift onto the video-anchored timeline before trim adjustment.
	var ptsAdjust int64
	if m.video != nil {
		ptsAdjust = media.Rescale(m.video.FirstKeyPTS, m.video.TimeBaseIn, s.In.TimeBase)
	}
	ptsIn := pkt.PTS - ptsAdjust
	if ptsIn < 0 {
		ptsIn = 0
	}
	ptsOrig := pkt.PTS

	adjusted, err := m.adjuster.Adjust(ptsIn, s.In.TimeBase, s.TimeBaseOut, false)
	if err != nil {
		// Inside a trimmed range.
		return
	}
	pkt.PTS = adjusted

	if s.Transcode() {
		m.subtitleTranscode(s, pkt)
		return
	}

	// Propagate the same delta to dts, clamp at zero, and rebase.
	pkt.DTS += media.Rescale(pkt.PTS, s.TimeBaseOut, s.In.TimeBase) - ptsOrig
	pkt.DTS = media.Rescale(pkt.DTS, s.In.TimeBase, s.TimeBaseOut)
	if pkt.DTS < 0 {
		pkt.DTS = 0
	}
	pkt.Duration = media.Rescale(pkt.Duration, s.In.TimeBase, s.TimeBaseOut)
	pkt.StreamIndex = s.StreamIndex
	pkt.TimeBase = s.TimeBaseOut
	m.writeToContainer(pkt)
}

// subtitleTranscode decodes and re-encodes one subtitle packet. DVB
// bitmap subtitles emit a display-on/display-off packet pair.
func (m *Muxer) subtitleTranscode(s *track.Subtitle, pkt *media.Packet) {
	cue, err := s.Decoder.Decode(pkt)
	if err != nil {
		m.fatal(fmt.Errorf("%w: subtitle decode on track %d: %v", ErrMuxFatal, s.In.TrackID, err))
		return
	}
	if cue == nil || cue.Rects == 0 {
		return
	}

	microTB := media.R(1, 1_000_000)
	msTB := media.R(1, 1000)
	// The packet pts was already trim-adjusted; rebase the cue clock
	// onto it.
	cue.PTS = media.Rescale(pkt.PTS, s.TimeBaseOut, microTB)

	outPackets := 1
	if s.Encoder.CodecID() == media.CodecDVBSubtitle {
		outPackets = 2
	}
	for i := 0; i < outPackets; i++ {
		cue.PTS += media.Rescale(cue.StartDisplayTime, msTB, microTB)
		cue.EndDisplayTime -= cue.StartDisplayTime
		startDisplay := cue.StartDisplayTime
		cue.StartDisplayTime = 0
		if i > 0 {
			cue.Rects = 0
		}

		data, err := s.Encoder.Encode(cue)
		if err != nil {
			m.fatal(fmt.Errorf("%w: subtitle encode on track %d: %v", ErrMuxFatal, s.In.TrackID, err))
			return
		}

		out := &media.Packet{
			Data:        data,
			StreamIndex: s.StreamIndex,
			TimeBase:    s.TimeBaseOut,
			Duration:    media.Rescale(cue.EndDisplayTime, msTB, s.TimeBaseOut),
			PTS:         media.Rescale(cue.PTS, microTB, s.TimeBaseOut),
		}
		if s.Encoder.CodecID() == media.CodecDVBSubtitle {
			// DVB runs on the 90 kHz PES clock.
			if i == 0 {
				out.PTS += 90 * startDisplay
			} else {
				out.PTS += 90 * cue.EndDisplayTime
			}
		}
		out.DTS = out.PTS
		m.writeToContainer(out)
	}
}
