// Package bitstream splits encoder output into NAL units, extracts
// parameter-set headers for container extradata, and classifies frames
// for the mux scheduler. Input is Annex B byte streams as delivered by
// H.264/HEVC hardware encoders.
package bitstream

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	H264NALSlice = 1
	H264NALIDR   = 5
	H264NALSEI   = 6
	H264NALSPS   = 7
	H264NALPPS   = 8
	H264NALAUD   = 9
)

// H.265/HEVC NAL unit type constants as defined in ITU-T H.265 Table 7-1.
const (
	HEVCNALBlaWLP   = 16
	HEVCNALIDRWRadl = 19
	HEVCNALIDRNlp   = 20
	HEVCNALCraNut   = 21
	HEVCNALVPS      = 32
	HEVCNALSPS      = 33
	HEVCNALPPS      = 34
	HEVCNALAUD      = 35
	HEVCNALSEIPre   = 39
)

// ExtradataPadding is the zeroed tail appended to extradata buffers so
// downstream parsers can over-read safely.
const ExtradataPadding = 64

// NALUnit is one parsed NAL unit within an access unit. Offset and Size
// cover the unit including its start code, so consecutive units tile
// the input exactly; Data excludes the start code.
type NALUnit struct {
	Type   byte
	Offset int
	Size   int
	Data   []byte
}

// parseAnnexB scans data for 3-byte (0x000001) and 4-byte (0x00000001)
// start codes and cuts NAL units at the boundaries. nalType extracts
// the codec-specific type from the first NAL bytes.
func parseAnnexB(data []byte, minNALBytes int, nalType func([]byte) byte) []NALUnit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type scPos struct {
		scStart   int
		dataStart int
	}

	var positions []scPos
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for idx, pos := range positions {
		if pos.dataStart >= n {
			continue
		}
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].scStart
		}
		if pos.dataStart >= end {
			continue
		}
		nalData := data[pos.dataStart:end]
		if len(nalData) < minNALBytes {
			continue
		}
		units = append(units, NALUnit{
			Type:   nalType(nalData),
			Offset: pos.scStart,
			Size:   end - pos.scStart,
			Data:   nalData,
		})
	}
	return units
}

// ParseH264 parses an H.264 Annex B access unit into NAL units.
func ParseH264(data []byte) []NALUnit {
	return parseAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseHEVC parses an HEVC Annex B access unit into NAL units.
func ParseHEVC(data []byte) []NALUnit {
	return parseAnnexB(data, 2, func(d []byte) byte { return (d[0] >> 1) & 0x3F })
}

func findNAL(units []NALUnit, typ byte) *NALUnit {
	for i := range units {
		if units[i].Type == typ {
			return &units[i]
		}
	}
	return nil
}

// ExtractH264Headers returns [SPS][PPS] (start codes included) from the
// access unit, followed by ExtradataPadding zero bytes, or nil when
// either header is absent.
func ExtractH264Headers(data []byte) []byte {
	units := ParseH264(data)
	sps := findNAL(units, H264NALSPS)
	pps := findNAL(units, H264NALPPS)
	if sps == nil || pps == nil {
		return nil
	}
	return concatHeaders(data, []*NALUnit{sps, pps})
}

// ExtractHEVCHeaders returns [VPS][SPS][PPS] (start codes included)
// from the access unit, followed by ExtradataPadding zero bytes, or nil
// when any header is absent.
func ExtractHEVCHeaders(data []byte) []byte {
	units := ParseHEVC(data)
	vps := findNAL(units, HEVCNALVPS)
	sps := findNAL(units, HEVCNALSPS)
	pps := findNAL(units, HEVCNALPPS)
	if vps == nil || sps == nil || pps == nil {
		return nil
	}
	return concatHeaders(data, []*NALUnit{vps, sps, pps})
}

func concatHeaders(data []byte, units []*NALUnit) []byte {
	size := 0
	for _, u := range units {
		size += u.Size
	}
	out := make([]byte, 0, size+ExtradataPadding)
	for _, u := range units {
		out = append(out, data[u.Offset:u.Offset+u.Size]...)
	}
	return append(out, make([]byte, ExtradataPadding)...)
}

// PAFFFieldLength returns the byte length of the first field within a
// buffer holding two field-coded pictures: one past the offset of the
// start code introducing the second slice NAL unit, so a 4-byte start
// code leaves its 3-byte tail to the second field. If no second slice
// is found the whole buffer is one field.
func PAFFFieldLength(data []byte) int {
	size := len(data)
	if size < 4 {
		return size
	}
	sliceNALU := 0
	a, b, c := data[0], data[1], data[2]
	var d byte
	for i := 3; i < size; i++ {
		d = data[i]
		if a|b == 0 && c == 1 {
			if sliceNALU != 0 {
				// Back up over the start code, including a 4-byte form.
				n := i - 3
				if i >= 4 && data[i-4] == 0 {
					n--
				}
				return n + 1
			}
			nalType := d & 0x1F
			if nalType == H264NALSlice || nalType == H264NALIDR {
				sliceNALU++
			}
		}
		a, b, c = b, c, d
	}
	return size
}
