package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zsiec/transmux/media"
)

// Cue is one decoded subtitle event. Display times are milliseconds
// relative to the packet pts; bitmap cues carry their rendered payload
// opaquely in Data.
type Cue struct {
	PTS              int64 // microseconds
	StartDisplayTime int64 // ms
	EndDisplayTime   int64 // ms
	Text             string
	Data             []byte // bitmap payload, nil for text cues
	Rects            int
}

// SubtitleDecoder decodes one subtitle packet into a cue. A nil cue
// with nil error means the packet produced no displayable event.
type SubtitleDecoder interface {
	Decode(pkt *media.Packet) (*Cue, error)
}

// SubtitleEncoder encodes a cue into a container payload.
type SubtitleEncoder interface {
	Encode(cue *Cue) ([]byte, error)
	CodecID() media.CodecID
}

// TextSubtitleDecoder decodes SRT/ASS/mov_text packets to plain text
// cues.
type TextSubtitleDecoder struct {
	Codec media.CodecID
}

// Decode extracts the cue text. ASS packets keep only the final text
// field; mov_text strips its length prefix.
func (d *TextSubtitleDecoder) Decode(pkt *media.Packet) (*Cue, error) {
	if len(pkt.Data) == 0 {
		return nil, nil
	}
	cue := &Cue{
		PTS:            media.Rescale(pkt.PTS, pkt.TimeBase, media.R(1, 1_000_000)),
		EndDisplayTime: media.Rescale(pkt.Duration, pkt.TimeBase, media.R(1, 1000)),
		Rects:          1,
	}
	switch d.Codec {
	case media.CodecMovText:
		if len(pkt.Data) < 2 {
			return nil, nil
		}
		n := int(binary.BigEndian.Uint16(pkt.Data))
		if n > len(pkt.Data)-2 {
			n = len(pkt.Data) - 2
		}
		cue.Text = string(pkt.Data[2 : 2+n])
	case media.CodecASS:
		// Dialogue event: the text is everything past the eighth comma.
		s := string(pkt.Data)
		parts := strings.SplitN(s, ",", 9)
		cue.Text = parts[len(parts)-1]
	default:
		cue.Text = strings.TrimRight(string(pkt.Data), "\r\n\x00")
	}
	if cue.Text == "" {
		return nil, nil
	}
	return cue, nil
}

// MovTextEncoder encodes text cues as 3GPP timed text samples:
// a big-endian 16-bit byte length followed by UTF-8 text.
type MovTextEncoder struct{}

func (MovTextEncoder) CodecID() media.CodecID { return media.CodecMovText }

func (MovTextEncoder) Encode(cue *Cue) ([]byte, error) {
	text := []byte(cue.Text)
	if len(text) > 0xFFFF {
		return nil, fmt.Errorf("mov_text: cue too long (%d bytes)", len(text))
	}
	out := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(out, uint16(len(text)))
	copy(out[2:], text)
	return out, nil
}

// ASSEncoder encodes text cues as ASS dialogue events.
type ASSEncoder struct{}

func (ASSEncoder) CodecID() media.CodecID { return media.CodecASS }

func (ASSEncoder) Encode(cue *Cue) ([]byte, error) {
	text := strings.ReplaceAll(cue.Text, "\n", "\\N")
	return []byte("0,0,Default,,0,0,0,," + text), nil
}
