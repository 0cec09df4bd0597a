package mux

import (
	"errors"
	"fmt"

	"github.com/zsiec/transmux/bitstream"
	"github.com/zsiec/transmux/container"
	"github.com/zsiec/transmux/media"
)

// SubmitVideo accepts one encoded access unit from the video encoder.
// pts is in the video input timebase; dts is media.NoPTS when the
// encoder does not provide one. The first unit is written inline (it
// carries the parameter sets the header needs); later units go through
// the output queue when threading is enabled.
func (m *Muxer) SubmitVideo(payload []byte, pts, dts int64) error {
	if m.video == nil {
		return fmt.Errorf("mux: no video stream configured")
	}
	if m.outputEnabled && m.headerWritten.Load() {
		buf := m.takeFreeBuffer(len(payload))
		buf.Fill(payload, pts, dts)
		if !m.qVideo.push(buf) {
			m.fatal(fmt.Errorf("%w: video queue closed", ErrMuxFatal))
		}
		m.evOutputAdded.set()
		return m.Err()
	}

	buf := bitstream.NewBuffer(len(payload))
	buf.Fill(payload, pts, dts)
	var writtenDTS int64
	return m.writeNextFrameInternal(buf, &writtenDTS)
}

// takeFreeBuffer pops a recycled bitstream buffer of the right size
// class, allocating fresh when the pool is dry or too small.
func (m *Muxer) takeFreeBuffer(size int) *bitstream.Buffer {
	pool := m.qVideoFree[1]
	if size > largeFrameBytes {
		pool = m.qVideoFree[0]
	}
	if buf, ok := pool.pop(); ok && buf.MaxLength >= size {
		return buf
	}
	return bitstream.NewBuffer(size * 4)
}

// recycleBuffer returns a drained buffer to its size-class pool.
func (m *Muxer) recycleBuffer(buf *bitstream.Buffer) {
	pool := m.qVideoFree[1]
	if buf.DataLength > largeFrameBytes {
		pool = m.qVideoFree[0]
	}
	buf.Reset()
	pool.push(buf)
}

// writeNextFrameInternal classifies, header-writes if pending, splits
// PAFF fields, stamps timestamps, and writes the access unit. The
// written dts is returned in nativeTB for the interleaving loop.
func (m *Muxer) writeNextFrameInternal(buf *bitstream.Buffer, writtenDTS *int64) error {
	v := m.video

	info := v.Parser.Parse(buf.Payload())
	buf.Keyframe = info.Keyframe
	buf.Type = info.Type
	buf.Struct = info.Struct
	buf.Repeat = info.RepeatPict

	units := parseUnits(v.Codec, buf.Payload())
	if len(units) == 0 {
		m.fatal(fmt.Errorf("%w: access unit with no NAL units", ErrMuxFatal))
		return m.Err()
	}

	// A leading access unit delimiter is the container's job to
	// regenerate; elide it from the payload.
	if isAUD(v.Codec, units[0].Type) {
		buf.DataOffset += units[0].Size
		buf.DataLength -= units[0].Size
	}

	if !m.headerWritten.Load() {
		if buf.DTS == media.NoPTS {
			v.DTSUnavailable = true
		}
		if err := m.writeFileHeader(buf); err != nil {
			m.fatal(err)
			return err
		}
	}

	if m.captions != nil {
		m.extractCaptions(units, buf.PTS)
	}

	fpsTB := v.FPSTimebase()
	streamTB := v.TimeBaseOut
	duration := media.Rescale(1, fpsTB, streamTB)

	remaining := buf.DataLength
	for i := 0; remaining > 0; i++ {
		bytesToWrite := remaining
		if v.IsPAFF {
			bytesToWrite = bitstream.PAFFFieldLength(buf.Data[buf.DataOffset : buf.DataOffset+remaining])
		}

		pkt := &media.Packet{
			Data:        append([]byte(nil), buf.Data[buf.DataOffset:buf.DataOffset+bytesToWrite]...),
			StreamIndex: v.StreamIndex,
			TimeBase:    streamTB,
			Duration:    duration,
			Key:         buf.Keyframe && i == 0,
		}

		ptsBase := buf.PTS
		if !v.CFR {
			ptsBase -= v.FirstKeyPTS
		}
		frameIdx := media.Rescale(ptsBase, v.TimeBaseIn, fpsTB)
		pkt.PTS = media.Rescale(frameIdx, fpsTB, streamTB)
		if v.IsPAFF {
			pkt.PTS += int64(i) * duration
		}

		if !v.DTSUnavailable {
			pkt.DTS = media.Rescale(media.Rescale(buf.DTS, nativeTB, fpsTB), fpsTB, streamTB)
			if v.IsPAFF {
				pkt.DTS += int64(i) * duration
			}
		} else {
			pkt.DTS = media.Rescale(v.NextFPSBaseDTS, fpsTB, streamTB)
			v.NextFPSBaseDTS++
		}
		*writtenDTS = media.Rescale(pkt.DTS, streamTB, nativeTB)
		m.writeToContainer(pkt)

		remaining -= bytesToWrite
		buf.DataOffset += bytesToWrite
	}

	if m.outputEnabled && m.headerWritten.Load() {
		m.recycleBuffer(buf)
	} else {
		buf.Reset()
	}

	// Flip only after the header-writing unit is fully on disk, so the
	// output goroutine cannot start ahead of it.
	m.headerWritten.Store(true)
	return m.Err()
}

func parseUnits(c media.CodecID, data []byte) []bitstream.NALUnit {
	if c == media.CodecHEVC {
		return bitstream.ParseHEVC(data)
	}
	return bitstream.ParseH264(data)
}

func isAUD(c media.CodecID, nalType byte) bool {
	if c == media.CodecHEVC {
		return nalType == bitstream.HEVCNALAUD
	}
	return nalType == bitstream.H264NALAUD
}

// writeFileHeader installs video extradata from the first access unit
// and writes the container header. It does not release the deferred
// head-buffer packets; those drain ahead of the next packet that reaches
// writeNextPacketInternal (or the drain sentinel). A nil buffer is the
// audio-only path.
func (m *Muxer) writeFileHeader(buf *bitstream.Buffer) error {
	if m.video != nil && buf != nil {
		var extradata []byte
		switch m.video.Codec {
		case media.CodecHEVC:
			extradata = bitstream.ExtractHEVCHeaders(buf.Payload())
		default:
			extradata = bitstream.ExtractH264Headers(buf.Payload())
		}
		if extradata != nil {
			if err := m.writer.SetExtradata(m.video.StreamIndex, extradata); err != nil {
				return fmt.Errorf("%w: %v", ErrHeaderWrite, err)
			}
			m.video.ExtradataSet = true
			m.log.Debug("installed video extradata", "size", len(extradata))
		} else {
			m.log.Warn("first access unit carries no parameter sets")
		}
	}

	m.writer.SetMetadata("encoding_tool", "transmux")

	opts := make(map[string]string, len(m.cfg.Options)+1)
	for k, v := range m.cfg.Options {
		opts[k] = v
	}
	if m.video != nil && m.writer.Name() == "mp4" {
		opts["brand"] = "mp42"
	}

	if err := m.writer.WriteHeader(opts); err != nil {
		if isUnknownOption(err) {
			return fmt.Errorf("%w: %v", ErrMuxOpt, err)
		}
		return fmt.Errorf("%w: %v", ErrHeaderWrite, err)
	}
	m.log.Debug("container header written")

	if m.video != nil && m.video.DTSUnavailable {
		m.video.InitDTSCounter()
		m.log.Debug("synthesizing dts", "first", m.video.NextFPSBaseDTS)
	}
	return nil
}

func isUnknownOption(err error) bool {
	return errors.Is(err, container.ErrUnknownOption)
}
