package codec

import (
	"bytes"
	"testing"

	"github.com/zsiec/transmux/media"
)

func TestTextSubtitleDecodeSRT(t *testing.T) {
	t.Parallel()
	d := &TextSubtitleDecoder{Codec: media.CodecSRT}
	cue, err := d.Decode(&media.Packet{
		Data:     []byte("Hello there\r\n"),
		PTS:      90000,
		Duration: 180000,
		TimeBase: media.R(1, 90000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if cue.Text != "Hello there" {
		t.Errorf("text = %q", cue.Text)
	}
	if cue.PTS != 1_000_000 {
		t.Errorf("pts = %d µs, want 1000000", cue.PTS)
	}
	if cue.EndDisplayTime != 2000 {
		t.Errorf("end display = %d ms, want 2000", cue.EndDisplayTime)
	}
}

func TestTextSubtitleDecodeASS(t *testing.T) {
	t.Parallel()
	d := &TextSubtitleDecoder{Codec: media.CodecASS}
	cue, err := d.Decode(&media.Packet{
		Data:     []byte("0,0,Default,,0,0,0,,Two,words here"),
		TimeBase: media.R(1, 1000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if cue.Text != "Two,words here" {
		t.Errorf("ASS text = %q, want text past eighth comma", cue.Text)
	}
}

func TestMovTextRoundTrip(t *testing.T) {
	t.Parallel()
	enc := MovTextEncoder{}
	data, err := enc.Encode(&Cue{Text: "subtitle line", Rects: 1})
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 0 || data[1] != 13 {
		t.Errorf("length prefix = % x, want 00 0d", data[:2])
	}
	if !bytes.Equal(data[2:], []byte("subtitle line")) {
		t.Error("payload mismatch")
	}

	d := &TextSubtitleDecoder{Codec: media.CodecMovText}
	cue, err := d.Decode(&media.Packet{Data: data, TimeBase: media.R(1, 1000)})
	if err != nil {
		t.Fatal(err)
	}
	if cue.Text != "subtitle line" {
		t.Errorf("round trip = %q", cue.Text)
	}
}

func TestASSEncoderEscapesNewlines(t *testing.T) {
	t.Parallel()
	data, err := ASSEncoder{}.Encode(&Cue{Text: "one\ntwo", Rects: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(data, []byte(`one\Ntwo`)) {
		t.Errorf("encoded = %q", data)
	}
}

func TestEmptyCueDropped(t *testing.T) {
	t.Parallel()
	d := &TextSubtitleDecoder{Codec: media.CodecSRT}
	cue, err := d.Decode(&media.Packet{Data: []byte("\r\n"), TimeBase: media.R(1, 1000)})
	if err != nil || cue != nil {
		t.Errorf("blank packet: cue=%v err=%v, want nil/nil", cue, err)
	}
}
