package mux

import (
	"github.com/zsiec/ccx"

	"github.com/zsiec/transmux/bitstream"
	"github.com/zsiec/transmux/codec"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
)

// captionExtractor mines CEA-608 caption pairs out of H.264 SEI NALUs
// and turns completed caption text into packets on a subtitle track.
type captionExtractor struct {
	target *track.Subtitle
	decs   map[int]*ccx.CEA608Decoder
}

func newCaptionExtractor(target *track.Subtitle) *captionExtractor {
	return &captionExtractor{
		target: target,
		decs: map[int]*ccx.CEA608Decoder{
			1: ccx.NewCEA608Decoder(),
			2: ccx.NewCEA608Decoder(),
			3: ccx.NewCEA608Decoder(),
			4: ccx.NewCEA608Decoder(),
		},
	}
}

// extractCaptions scans the access unit's SEI NALUs for caption data
// and writes any completed caption text as subtitle packets. Runs on
// whichever goroutine owns the video write path, after the header.
func (m *Muxer) extractCaptions(units []bitstream.NALUnit, ptsIn int64) {
	for _, u := range units {
		if u.Type != bitstream.H264NALSEI {
			continue
		}
		cd := ccx.ExtractCaptions(u.Data)
		if cd == nil {
			continue
		}
		for _, pair := range cd.CC608Pairs {
			dec := m.captions.decs[pair.Channel]
			if dec == nil {
				continue
			}
			text := dec.Decode(pair.Data[0], pair.Data[1])
			if text == "" {
				continue
			}
			m.writeCaptionText(text, ptsIn)
		}
	}
}

// writeCaptionText emits one caption cue on the caption subtitle
// track, through its encoder when the track transcodes.
func (m *Muxer) writeCaptionText(text string, ptsIn int64) {
	s := m.captions.target
	pts, err := m.adjuster.Adjust(ptsIn, m.video.TimeBaseIn, s.TimeBaseOut, true)
	if err != nil {
		return
	}
	if pts < 0 {
		pts = 0
	}
	data := []byte(text)
	if s.Transcode() {
		encoded, err := s.Encoder.Encode(&codec.Cue{Text: text, Rects: 1})
		if err != nil {
			m.log.Warn("caption encode failed", "error", err)
			return
		}
		data = encoded
	}
	m.writeToContainer(&media.Packet{
		Data:        data,
		StreamIndex: s.StreamIndex,
		TimeBase:    s.TimeBaseOut,
		PTS:         pts,
		DTS:         pts,
	})
}
