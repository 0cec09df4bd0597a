package codec

import (
	"errors"

	"github.com/zsiec/transmux/media"
)

// ErrInvalidADTS is returned when the ADTS sync word or header is malformed.
var ErrInvalidADTS = errors.New("invalid ADTS header")

// AAC sample rate index table (ISO 14496-3)
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// ADTSToASC strips the ADTS framing from AAC packets and captures the
// AudioSpecificConfig bytes for container extradata, the way MP4/MKV
// muxing requires. The first successfully filtered packet populates
// Extradata.
type ADTSToASC struct {
	asc []byte
}

// NewADTSToASC returns a fresh filter instance.
func NewADTSToASC() *ADTSToASC { return &ADTSToASC{} }

// Extradata returns the AudioSpecificConfig captured from the first
// filtered packet, or nil before one has been seen.
func (f *ADTSToASC) Extradata() []byte { return f.asc }

// Filter converts one ADTS-framed packet into its raw AAC payload.
// A packet too short to hold a header returns ErrAgain (absorbed, no
// output); a bad sync word or header is ErrInvalidADTS.
func (f *ADTSToASC) Filter(pkt *media.Packet) (*media.Packet, error) {
	data := pkt.Data
	if len(data) < 7 {
		return nil, ErrAgain
	}
	if data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return nil, ErrInvalidADTS
	}

	hasCRC := data[1]&0x01 == 0
	headerSize := 7
	if hasCRC {
		headerSize = 9
	}

	objectType := (data[2]>>6)&0x03 + 1
	sampleRateIdx := (data[2] >> 2) & 0x0F
	if int(sampleRateIdx) >= len(aacSampleRates) {
		return nil, ErrInvalidADTS
	}
	channelCfg := (data[2]&0x01)<<2 | (data[3]>>6)&0x03

	frameLen := int(data[3]&0x03)<<11 | int(data[4])<<3 | int(data[5]>>5)
	if frameLen < headerSize || frameLen > len(data) {
		return nil, ErrInvalidADTS
	}

	if f.asc == nil {
		// AudioSpecificConfig: 5 bits object type, 4 bits frequency
		// index, 4 bits channel configuration, zero-padded.
		f.asc = []byte{
			objectType<<3 | sampleRateIdx>>1,
			sampleRateIdx<<7 | channelCfg<<3,
		}
	}

	out := pkt.Clone()
	out.Data = out.Data[headerSize:frameLen]
	return out, nil
}

// ADTSSampleRate returns the sample rate encoded in an ADTS header.
func ADTSSampleRate(data []byte) (int, error) {
	if len(data) < 7 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return 0, ErrInvalidADTS
	}
	idx := (data[2] >> 2) & 0x0F
	if int(idx) >= len(aacSampleRates) {
		return 0, ErrInvalidADTS
	}
	return aacSampleRates[idx], nil
}
