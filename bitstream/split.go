package bitstream

// SplitAccessUnits cuts an Annex B elementary stream into access
// units. Streams with access unit delimiters split at each AUD;
// otherwise a new unit starts at each slice with first_mb_in_slice
// zero, with leading parameter sets attached to the following slice.
func SplitAccessUnits(data []byte, hevc bool) [][]byte {
	var units []NALUnit
	if hevc {
		units = ParseHEVC(data)
	} else {
		units = ParseH264(data)
	}
	if len(units) == 0 {
		return nil
	}

	audType := byte(H264NALAUD)
	if hevc {
		audType = HEVCNALAUD
	}
	hasAUD := false
	for _, u := range units {
		if u.Type == audType {
			hasAUD = true
			break
		}
	}

	var cuts []int
	if hasAUD {
		for _, u := range units {
			if u.Type == audType {
				cuts = append(cuts, u.Offset)
			}
		}
	} else {
		groupStart := -1
		for _, u := range units {
			if !isSliceStart(u, hevc) {
				if groupStart < 0 {
					groupStart = u.Offset
				}
				continue
			}
			start := u.Offset
			if groupStart >= 0 {
				start = groupStart
			}
			cuts = append(cuts, start)
			groupStart = -1
		}
	}
	if len(cuts) == 0 {
		return [][]byte{data}
	}
	if cuts[0] != 0 {
		cuts = append([]int{0}, cuts...)
	}

	out := make([][]byte, 0, len(cuts))
	for i, start := range cuts {
		end := len(data)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		if end > start {
			out = append(out, data[start:end])
		}
	}
	return out
}

// isSliceStart reports whether the NAL unit begins a new picture.
func isSliceStart(u NALUnit, hevc bool) bool {
	if hevc {
		if u.Type >= HEVCNALVPS {
			return false
		}
		if len(u.Data) < 3 {
			return false
		}
		// first_slice_segment_in_pic_flag is the first bit after the
		// two-byte NAL header.
		return u.Data[2]&0x80 != 0
	}
	if u.Type != H264NALSlice && u.Type != H264NALIDR {
		return false
	}
	if len(u.Data) < 2 {
		return false
	}
	// first_mb_in_slice == 0 encodes as a leading 1 bit (ue(v) zero).
	return u.Data[1]&0x80 != 0
}
