// Package input defines the contract the mux pipeline consumes packets
// through. Implementations wrap demuxers or raw elementary stream
// readers.
package input

import (
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/trim"
)

// Info describes the video input geometry and timing.
type Info struct {
	Width  int
	Height int
	FPS    media.Rational
	Frames int
	Format string
}

// Source is the pull interface the pipeline reads from. ReadPacket
// returns io.EOF at end of stream.
type Source interface {
	// InputCodec returns the source video codec, or CodecUnknown for
	// raw frame sources.
	InputCodec() media.CodecID
	// Header returns the source bitstream header for parser-fed
	// decoder initialization.
	Header() []byte
	// TrimParam returns the active trim list and frame offset.
	TrimParam() (trim.List, int)
	// SetTrimParam replaces the active trim list.
	SetTrimParam(list trim.List, offset int)
	// Info returns the video input description.
	Info() Info
	// ReadPacket returns the next demuxed packet.
	ReadPacket() (*media.Packet, error)
}
