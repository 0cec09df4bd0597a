package input

import (
	"io"

	"github.com/zsiec/transmux/bitstream"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/trim"
)

// ElementaryStream serves a raw Annex B H.264/HEVC elementary stream
// as a Source: one packet per access unit, pts counted in frames
// against the configured rate.
type ElementaryStream struct {
	codec media.CodecID
	fps   media.Rational
	units [][]byte
	pos   int

	trimList   trim.List
	trimOffset int
}

// NewElementaryStream splits data into access units up front.
func NewElementaryStream(data []byte, codec media.CodecID, fps media.Rational) *ElementaryStream {
	return &ElementaryStream{
		codec: codec,
		fps:   fps,
		units: bitstream.SplitAccessUnits(data, codec == media.CodecHEVC),
	}
}

func (s *ElementaryStream) InputCodec() media.CodecID { return s.codec }

// Header returns the parameter sets preceding the first slice, for
// decoder initialization.
func (s *ElementaryStream) Header() []byte {
	if len(s.units) == 0 {
		return nil
	}
	if s.codec == media.CodecHEVC {
		return bitstream.ExtractHEVCHeaders(s.units[0])
	}
	return bitstream.ExtractH264Headers(s.units[0])
}

func (s *ElementaryStream) TrimParam() (trim.List, int) {
	return s.trimList, s.trimOffset
}

func (s *ElementaryStream) SetTrimParam(list trim.List, offset int) {
	s.trimList = list
	s.trimOffset = offset
}

func (s *ElementaryStream) Info() Info {
	return Info{
		FPS:    s.fps,
		Frames: len(s.units),
		Format: s.codec.String(),
	}
}

// ReadPacket returns the next access unit with a frame-counted pts.
func (s *ElementaryStream) ReadPacket() (*media.Packet, error) {
	if s.pos >= len(s.units) {
		return nil, io.EOF
	}
	au := s.units[s.pos]
	pkt := &media.Packet{
		Data:     au,
		PTS:      int64(s.pos),
		DTS:      media.NoPTS,
		Duration: 1,
		TimeBase: s.fps.Inv(),
	}
	s.pos++
	return pkt, nil
}
