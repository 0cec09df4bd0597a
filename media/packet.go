package media

// CodecID identifies a compressed stream format. Only codecs the mux
// pipeline needs to distinguish are listed; everything else flows
// through as CodecUnknown pass-through data.
type CodecID int

const (
	CodecUnknown CodecID = iota

	// Video.
	CodecH264
	CodecHEVC

	// Audio.
	CodecAAC
	CodecAC3
	CodecMP3
	CodecFLAC

	// PCM family.
	CodecPCMS16LE
	CodecPCMS16BE
	CodecPCMS24LE
	CodecPCMS24BE
	CodecPCMS32LE
	CodecPCMS32BE
	CodecPCMU8
	CodecPCMS8Planar
	CodecPCMS16LEPlanar
	CodecPCMS16BEPlanar
	CodecPCMS24LEPlanar
	CodecPCMS32LEPlanar
	CodecPCMF32BE
	CodecPCMF32LE
	CodecPCMF64BE
	CodecPCMF64LE
	CodecPCMDVD
	CodecPCMBluray

	// Subtitles.
	CodecMovText
	CodecASS
	CodecSRT
	CodecDVBSubtitle
	CodecPGSSubtitle
)

// IsPCM reports whether the codec is raw PCM in any wrapping.
func (c CodecID) IsPCM() bool {
	return c >= CodecPCMS16LE && c <= CodecPCMBluray
}

// IsTextSubtitle reports whether the codec carries text subtitles.
func (c CodecID) IsTextSubtitle() bool {
	switch c {
	case CodecMovText, CodecASS, CodecSRT:
		return true
	}
	return false
}

func (c CodecID) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecHEVC:
		return "hevc"
	case CodecAAC:
		return "aac"
	case CodecAC3:
		return "ac3"
	case CodecMP3:
		return "mp3"
	case CodecFLAC:
		return "flac"
	case CodecMovText:
		return "mov_text"
	case CodecASS:
		return "ass"
	case CodecSRT:
		return "srt"
	case CodecDVBSubtitle:
		return "dvb_subtitle"
	case CodecPGSSubtitle:
		return "pgs_subtitle"
	}
	if c.IsPCM() {
		return "pcm"
	}
	return "unknown"
}

// Packet is one compressed packet in flight through the pipeline.
// Timestamps are expressed in TimeBase units.
type Packet struct {
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	TimeBase    Rational
	StreamIndex int
	TrackID     int
	SubStreamID int
	Key         bool
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return &c
}
