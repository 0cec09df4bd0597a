package bitstream

import "errors"

// PictureType classifies the coded picture of an access unit.
type PictureType int

const (
	PictureNone PictureType = iota
	PictureI
	PictureP
	PictureB
)

func (p PictureType) String() string {
	switch p {
	case PictureI:
		return "I"
	case PictureP:
		return "P"
	case PictureB:
		return "B"
	}
	return "?"
}

// PictureStruct describes progressive/field coding of a picture.
type PictureStruct int

const (
	StructFrame PictureStruct = iota
	StructField
)

// FrameInfo is the classification result for one access unit.
type FrameInfo struct {
	Keyframe   bool
	Type       PictureType
	Struct     PictureStruct
	RepeatPict int
}

var errNALTooShort = errors.New("NAL data too short")

type bitReader struct {
	data []byte
	pos  int
	bit  int
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (br *bitReader) readBit() (uint, error) {
	if br.pos >= len(br.data) {
		return 0, errNALTooShort
	}
	val := uint((br.data[br.pos] >> (7 - br.bit)) & 1)
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return val, nil
}

func (br *bitReader) readBits(n int) (uint, error) {
	var val uint
	for i := 0; i < n; i++ {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		val = (val << 1) | b
	}
	return val, nil
}

func (br *bitReader) readUE() (uint, error) {
	zeros := 0
	for {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errNALTooShort
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return (1 << zeros) - 1 + suffix, nil
}

func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}

// Parser classifies access units delivered by the encoder. It keeps
// sequence-level state (interlace coding from the SPS) alive across
// calls, matching the access-unit stream it is fed.
type Parser struct {
	HEVC bool

	spsSeen      bool
	frameMbsOnly bool
}

// Parse classifies one complete access unit.
func (p *Parser) Parse(data []byte) FrameInfo {
	if p.HEVC {
		return p.parseHEVC(data)
	}
	return p.parseH264(data)
}

func (p *Parser) parseH264(data []byte) FrameInfo {
	info := FrameInfo{Type: PictureNone}
	for _, u := range ParseH264(data) {
		switch u.Type {
		case H264NALSPS:
			p.parseH264SPS(u.Data)
		case H264NALIDR:
			info.Keyframe = true
			fallthrough
		case H264NALSlice:
			if info.Type == PictureNone {
				info.Type = h264SliceType(u.Data)
			}
		}
	}
	if p.spsSeen && !p.frameMbsOnly {
		info.Struct = StructField
	}
	if info.Keyframe {
		info.Type = PictureI
	}
	return info
}

// parseH264SPS reads just far enough into the SPS to learn whether the
// sequence is frame-only coded.
func (p *Parser) parseH264SPS(nalu []byte) {
	if len(nalu) < 4 {
		return
	}
	br := newBitReader(removeEmulationPrevention(nalu[1:]))
	profileIDC, err := br.readBits(8)
	if err != nil {
		return
	}
	if _, err := br.readBits(16); err != nil { // constraint flags + level
		return
	}
	if _, err := br.readUE(); err != nil { // seq_parameter_set_id
		return
	}
	switch profileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134:
		chromaFormatIDC, err := br.readUE()
		if err != nil {
			return
		}
		if chromaFormatIDC == 3 {
			br.readBits(1)
		}
		br.readUE() // bit_depth_luma_minus8
		br.readUE() // bit_depth_chroma_minus8
		br.readBits(1)
		scaling, _ := br.readBits(1)
		if scaling == 1 {
			return // scaling lists present, give up on the deep fields
		}
	}
	br.readUE() // log2_max_frame_num_minus4
	pocType, err := br.readUE()
	if err != nil {
		return
	}
	switch pocType {
	case 0:
		br.readUE()
	case 1:
		br.readBits(1)
		br.readUE()
		br.readUE()
		n, err := br.readUE()
		if err != nil {
			return
		}
		for i := uint(0); i < n; i++ {
			br.readUE()
		}
	}
	br.readUE()    // max_num_ref_frames
	br.readBits(1) // gaps_in_frame_num_value_allowed_flag
	br.readUE()    // pic_width_in_mbs_minus1
	br.readUE()    // pic_height_in_map_units_minus1
	frameMbsOnly, err := br.readBits(1)
	if err != nil {
		return
	}
	p.frameMbsOnly = frameMbsOnly == 1
	p.spsSeen = true
}

// h264SliceType reads the slice_type field of a slice header.
func h264SliceType(nalu []byte) PictureType {
	if len(nalu) < 2 {
		return PictureNone
	}
	br := newBitReader(removeEmulationPrevention(nalu[1:]))
	if _, err := br.readUE(); err != nil { // first_mb_in_slice
		return PictureNone
	}
	sliceType, err := br.readUE()
	if err != nil {
		return PictureNone
	}
	switch sliceType % 5 {
	case 0, 3:
		return PictureP
	case 1:
		return PictureB
	case 2, 4:
		return PictureI
	}
	return PictureNone
}

func (p *Parser) parseHEVC(data []byte) FrameInfo {
	info := FrameInfo{Type: PictureNone}
	for _, u := range ParseHEVC(data) {
		switch {
		case u.Type >= HEVCNALBlaWLP && u.Type <= HEVCNALCraNut:
			info.Keyframe = true
			info.Type = PictureI
		case u.Type < HEVCNALBlaWLP:
			if info.Type == PictureNone {
				info.Type = hevcSliceType(u)
			}
		}
	}
	return info
}

// hevcSliceType reads slice_type from an independent slice segment
// header. Dependent slice segments are not classified.
func hevcSliceType(u NALUnit) PictureType {
	if len(u.Data) < 3 {
		return PictureNone
	}
	br := newBitReader(removeEmulationPrevention(u.Data[2:]))
	first, err := br.readBit()
	if err != nil || first == 0 {
		return PictureNone
	}
	if _, err := br.readUE(); err != nil { // slice_pic_parameter_set_id
		return PictureNone
	}
	sliceType, err := br.readUE()
	if err != nil {
		return PictureNone
	}
	switch sliceType {
	case 0:
		return PictureB
	case 1:
		return PictureP
	case 2:
		return PictureI
	}
	return PictureNone
}
