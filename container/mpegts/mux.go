// Package mpegts implements the MPEG transport stream container writer
// driven by the mux pipeline. Output is a constant 188-byte packet
// stream: PAT and PMT up front and at keyframes, PES packets per
// elementary stream, PCR carried on the video PID.
package mpegts

import (
	"fmt"
	"io"

	"github.com/zsiec/transmux/container"
	"github.com/zsiec/transmux/media"
)

const (
	packetSize = 188
	pidPAT     = 0x0000
	pidPMT     = 0x1000
	firstESPID = 0x0100

	// 90 kHz system clock.
	tsTimebaseDen = 90000
)

// ISO 13818-1 stream type assignments.
const (
	streamTypeH264       = 0x1B
	streamTypeHEVC       = 0x24
	streamTypeAAC        = 0x0F
	streamTypeMP3        = 0x03
	streamTypeAC3        = 0x81
	streamTypePrivatePES = 0x06
)

// Writer is the MPEG-TS implementation of container.Writer. All
// timestamps are rescaled to the 90 kHz transport clock on write.
type Writer struct {
	w       io.Writer
	streams []*stream
	pcrPID  uint16
	nextPID uint16
	header  bool
	patCC   byte
	pmtCC   byte

	chapters []container.Chapter // accepted, not representable in TS
	metadata map[string]string
}

type stream struct {
	info       container.StreamInfo
	pid        uint16
	streamType byte
	streamID   byte
	cc         byte
}

// NewWriter builds a TS writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:        w,
		nextPID:  firstESPID,
		metadata: make(map[string]string),
	}
}

// Name returns the container format name.
func (m *Writer) Name() string { return "mpegts" }

// AddStream registers an elementary stream and assigns its PID.
func (m *Writer) AddStream(info container.StreamInfo) (int, error) {
	st, sid, err := elementaryType(info)
	if err != nil {
		return 0, err
	}
	s := &stream{
		info:       info,
		pid:        m.nextPID,
		streamType: st,
		streamID:   sid,
	}
	m.nextPID++
	m.streams = append(m.streams, s)
	if m.pcrPID == 0 && info.Kind == container.KindVideo {
		m.pcrPID = s.pid
	}
	return len(m.streams) - 1, nil
}

func elementaryType(info container.StreamInfo) (streamType, streamID byte, err error) {
	switch {
	case info.Codec == media.CodecH264:
		return streamTypeH264, 0xE0, nil
	case info.Codec == media.CodecHEVC:
		return streamTypeHEVC, 0xE0, nil
	case info.Codec == media.CodecAAC:
		return streamTypeAAC, 0xC0, nil
	case info.Codec == media.CodecMP3:
		return streamTypeMP3, 0xC0, nil
	case info.Codec == media.CodecAC3:
		return streamTypeAC3, 0xBD, nil
	case info.Codec.IsPCM(), info.Kind == container.KindSubtitle:
		return streamTypePrivatePES, 0xBD, nil
	}
	return 0, 0, fmt.Errorf("mpegts: no stream type for codec %s", info.Codec)
}

// SetExtradata stores codec configuration; TS carries parameter sets
// in-band, so this only updates the descriptor copy.
func (m *Writer) SetExtradata(streamIndex int, data []byte) error {
	if streamIndex < 0 || streamIndex >= len(m.streams) {
		return fmt.Errorf("mpegts: bad stream index %d", streamIndex)
	}
	m.streams[streamIndex].info.Extradata = data
	return nil
}

// SetChapters accepts the chapter list. TS has no chapter atom; the
// list is retained for writers layered on top.
func (m *Writer) SetChapters(chapters []container.Chapter) { m.chapters = chapters }

// SetMetadata records a container-level metadata pair.
func (m *Writer) SetMetadata(key, value string) { m.metadata[key] = value }

// tsKnownOptions are the header options this writer understands.
var tsKnownOptions = map[string]bool{
	"transport_stream_id": true,
	"program_number":      true,
}

// WriteHeader validates options and emits the initial PAT and PMT.
func (m *Writer) WriteHeader(opts map[string]string) error {
	for k := range opts {
		if !tsKnownOptions[k] {
			return fmt.Errorf("%w: %q", container.ErrUnknownOption, k)
		}
	}
	if len(m.streams) == 0 {
		return fmt.Errorf("mpegts: no streams registered")
	}
	if m.pcrPID == 0 {
		m.pcrPID = m.streams[0].pid
	}
	if err := m.writePSI(); err != nil {
		return err
	}
	m.header = true
	return nil
}

// WritePacket wraps one packet in PES and emits its TS packets.
// Keyframe video packets are preceded by a PSI refresh.
func (m *Writer) WritePacket(pkt *media.Packet) error {
	if !m.header {
		return fmt.Errorf("mpegts: packet before header")
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("mpegts: bad stream index %d", pkt.StreamIndex)
	}
	s := m.streams[pkt.StreamIndex]
	if pkt.Key && s.info.Kind == container.KindVideo {
		if err := m.writePSI(); err != nil {
			return err
		}
	}

	tb90k := media.R(1, tsTimebaseDen)
	pts := media.Rescale(pkt.PTS, pkt.TimeBase, tb90k)
	dts := media.Rescale(pkt.DTS, pkt.TimeBase, tb90k)

	pes := buildPES(s.streamID, pts, dts, pkt.Data)
	return m.writePES(s, pes, pkt.Key, dts)
}

// WriteTrailer flushes nothing extra; TS is self-terminating.
func (m *Writer) WriteTrailer() error { return nil }

// writePES splits a PES packet across 188-byte TS packets.
func (m *Writer) writePES(s *stream, pes []byte, key bool, dts int64) error {
	first := true
	for len(pes) > 0 {
		pkt := make([]byte, packetSize)
		pkt[0] = 0x47
		pkt[1] = byte(s.pid >> 8)
		if first {
			pkt[1] |= 0x40 // payload_unit_start_indicator
		}
		pkt[2] = byte(s.pid)

		// Adaptation field: PCR on the first packet of a PCR-PID
		// access unit, stuffing to fill short tails.
		var af []byte
		if first && s.pid == m.pcrPID {
			af = buildAdaptationPCR(dts, key)
		}
		payloadRoom := packetSize - 4 - len(af)
		if len(pes) < payloadRoom {
			// Stuff the adaptation field out to fill the packet.
			af = padAdaptation(af, payloadRoom-len(pes))
			payloadRoom = len(pes)
		}

		pkt[3] = 0x10 | s.cc&0x0F // payload present
		if len(af) > 0 {
			pkt[3] |= 0x20
		}
		s.cc = (s.cc + 1) & 0x0F

		pos := 4
		pos += copy(pkt[pos:], af)
		copy(pkt[pos:], pes[:payloadRoom])
		pes = pes[payloadRoom:]
		first = false

		if _, err := m.w.Write(pkt); err != nil {
			return fmt.Errorf("mpegts: write: %w", err)
		}
	}
	return nil
}

// buildAdaptationPCR returns an adaptation field carrying a PCR derived
// from the packet dts, with the random-access flag on keyframes.
func buildAdaptationPCR(dts int64, key bool) []byte {
	af := make([]byte, 8)
	af[0] = 7 // adaptation_field_length
	af[1] = 0x10
	if key {
		af[1] |= 0x40 // random_access_indicator
	}
	pcrBase := uint64(dts)
	af[2] = byte(pcrBase >> 25)
	af[3] = byte(pcrBase >> 17)
	af[4] = byte(pcrBase >> 9)
	af[5] = byte(pcrBase >> 1)
	af[6] = byte(pcrBase<<7) | 0x7E
	af[7] = 0
	return af
}

// padAdaptation extends (or creates) an adaptation field by n stuffing
// bytes.
func padAdaptation(af []byte, n int) []byte {
	if n <= 0 {
		return af
	}
	if len(af) == 0 {
		if n == 1 {
			return []byte{0}
		}
		out := make([]byte, n)
		out[0] = byte(n - 1)
		for i := 2; i < n; i++ {
			out[i] = 0xFF
		}
		return out
	}
	out := make([]byte, len(af)+n)
	copy(out, af)
	out[0] = byte(len(out) - 1)
	for i := len(af); i < len(out); i++ {
		out[i] = 0xFF
	}
	return out
}

// buildPES wraps an elementary stream payload in a PES header.
// A dts equal to pts is omitted from the header.
func buildPES(streamID byte, pts, dts int64, payload []byte) []byte {
	flags := byte(0x80) // PTS present
	headerLen := 5
	if dts != pts && dts != media.NoPTS {
		flags |= 0x40
		headerLen = 10
	}
	pesLen := 3 + headerLen + len(payload)
	if pesLen > 0xFFFF {
		pesLen = 0 // unbounded, allowed for video
	}
	out := make([]byte, 0, 9+headerLen+len(payload))
	out = append(out,
		0x00, 0x00, 0x01, streamID,
		byte(pesLen>>8), byte(pesLen),
		0x80, flags, byte(headerLen),
	)
	ptsPrefix := byte(0x20)
	if flags&0x40 != 0 {
		ptsPrefix = 0x30
	}
	out = appendTimestamp(out, ptsPrefix, pts)
	if flags&0x40 != 0 {
		out = appendTimestamp(out, 0x10, dts)
	}
	return append(out, payload...)
}

// appendTimestamp encodes a 33-bit timestamp in the 5-byte PES form.
func appendTimestamp(out []byte, prefix byte, ts int64) []byte {
	t := uint64(ts) & 0x1FFFFFFFF
	return append(out,
		prefix|byte(t>>29)&0x0E|0x01,
		byte(t>>22),
		byte(t>>14)|0x01,
		byte(t>>7),
		byte(t<<1)|0x01,
	)
}

// writePSI emits PAT and PMT packets.
func (m *Writer) writePSI() error {
	pat := buildSection(0x00, 1, patBody())
	if err := m.writeSection(pidPAT, pat, &m.patCC); err != nil {
		return err
	}
	pmt := buildSection(0x02, 1, m.pmtBody())
	return m.writeSection(pidPMT, pmt, &m.pmtCC)
}

func patBody() []byte {
	// program_number = 1 → PMT PID.
	return []byte{0x00, 0x01, 0xE0 | byte(pidPMT>>8), byte(pidPMT & 0xFF)}
}

func (m *Writer) pmtBody() []byte {
	body := []byte{
		0xE0 | byte(m.pcrPID>>8), byte(m.pcrPID),
		0xF0, 0x00, // program_info_length = 0
	}
	for _, s := range m.streams {
		body = append(body,
			s.streamType,
			0xE0|byte(s.pid>>8), byte(s.pid),
			0xF0, 0x00, // ES_info_length = 0
		)
	}
	return body
}

// buildSection wraps a table body in a PSI section with CRC32.
func buildSection(tableID byte, tableIDExt uint16, body []byte) []byte {
	sectionLen := 5 + len(body) + 4
	sec := make([]byte, 0, 3+sectionLen)
	sec = append(sec,
		tableID,
		0xB0|byte(sectionLen>>8), byte(sectionLen),
		byte(tableIDExt>>8), byte(tableIDExt),
		0xC1, // version 0, current_next = 1
		0x00, // section_number
		0x00, // last_section_number
	)
	sec = append(sec, body...)
	crc := computeCRC32(sec)
	return append(sec, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// writeSection emits one PSI section as a single TS packet with a
// pointer field.
func (m *Writer) writeSection(pid uint16, section []byte, cc *byte) error {
	pkt := make([]byte, packetSize)
	pkt[0] = 0x47
	pkt[1] = 0x40 | byte(pid>>8)
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | *cc&0x0F
	*cc = (*cc + 1) & 0x0F
	pkt[4] = 0x00 // pointer field
	n := copy(pkt[5:], section)
	for i := 5 + n; i < packetSize; i++ {
		pkt[i] = 0xFF
	}
	if _, err := m.w.Write(pkt); err != nil {
		return fmt.Errorf("mpegts: write section: %w", err)
	}
	return nil
}
