// Package container defines the contract between the mux pipeline and
// concrete container writers, plus the format-family rules that decide
// subtitle codec conversion.
package container

import (
	"errors"

	"github.com/zsiec/transmux/media"
)

// ErrUnknownOption is wrapped by writers that receive an option key
// they do not understand at header time.
var ErrUnknownOption = errors.New("unknown container option")

// StreamKind classifies output streams.
type StreamKind int

const (
	KindVideo StreamKind = iota
	KindAudio
	KindSubtitle
)

// StreamInfo describes one output stream at registration time.
type StreamInfo struct {
	Kind     StreamKind
	Codec    media.CodecID
	TimeBase media.Rational

	// Video.
	Width     int
	Height    int
	FrameRate media.Rational

	// Audio.
	SampleRate int
	Channels   int
	FrameSize  int

	Extradata []byte
	Metadata  map[string]string
	Default   bool
}

// Chapter is one chapter entry with trim-adjusted bounds.
type Chapter struct {
	ID       int
	Start    int64
	End      int64
	TimeBase media.Rational
	Metadata map[string]string
}

// Writer is a container muxer. Streams are registered before
// WriteHeader; packets carry the stream index assigned at
// registration. Extradata may be installed late (after registration,
// before the header), which is how deferred video headers arrive.
type Writer interface {
	Name() string
	AddStream(info StreamInfo) (int, error)
	SetExtradata(streamIndex int, data []byte) error
	SetChapters(chapters []Chapter)
	SetMetadata(key, value string)
	WriteHeader(opts map[string]string) error
	WritePacket(pkt *media.Packet) error
	WriteTrailer() error
}

// mp4Family lists the MOV-derived format names that demand mov_text
// subtitles and ASC audio extradata.
var mp4Family = map[string]bool{
	"mp4":  true,
	"mov":  true,
	"3gp":  true,
	"3g2":  true,
	"psp":  true,
	"ipod": true,
	"f4v":  true,
}

// IsMP4Family reports whether the format name is a MOV-derived
// container.
func IsMP4Family(name string) bool { return mp4Family[name] }

// IsMatroska reports whether the format name is Matroska proper.
func IsMatroska(name string) bool { return name == "matroska" }
