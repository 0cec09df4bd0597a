package mux

import (
	"errors"
	"fmt"
	"math"

	"github.com/zsiec/transmux/codec"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
)

// WritePacket accepts one demuxed audio or subtitle packet. Audio
// packets carry TrackID > 0, subtitles TrackID < 0. A nil packet is
// the end-of-stream drain sentinel: every stage flushes its caches and
// forwards it downstream.
func (m *Muxer) WritePacket(pkt *media.Packet) error {
	d := pktMuxData{kind: kindPacket, pkt: pkt}
	if pkt == nil {
		d.drain = true
	} else if pkt.TrackID > 0 {
		d.audio = m.audioForPacket(pkt)
	}
	if m.outputEnabled {
		if m.processEnabled {
			if !m.qAudioProc.push(d) {
				m.fatal(fmt.Errorf("%w: process queue closed", ErrMuxFatal))
			}
			m.evProcAdded.set()
		} else {
			if !m.qAudioOut.push(d) {
				m.fatal(fmt.Errorf("%w: output queue closed", ErrMuxFatal))
			}
			m.evOutputAdded.set()
		}
		return m.Err()
	}
	m.writeNextPacketInternal(&d)
	return m.Err()
}

// writeNextPacketInternal is the head of the per-packet processing
// chain. Before the header exists, packets park in the head buffer;
// once it does, the buffer drains ahead of fresh input.
func (m *Muxer) writeNextPacketInternal(d *pktMuxData) {
	if !m.headerWritten.Load() {
		m.headBuf = append(m.headBuf, *d)
		return
	}
	if len(m.headBuf) > 0 && !d.fromHead {
		buffered := m.headBuf
		m.headBuf = nil
		for i := range buffered {
			buffered[i].fromHead = true
			m.writeNextPacketInternal(&buffered[i])
		}
	}

	if d.drain {
		if m.processEnabled {
			// The drain must flow through the downstream stages so
			// their caches flush in order.
			m.addAudQueue(d, m.drainTarget())
			return
		}
		m.flushAllAudio(&d.dts)
		return
	}

	if d.pkt.TrackID < 0 {
		if m.processEnabled {
			m.addAudQueue(d, m.drainTarget())
			return
		}
		m.subtitleWritePacket(d.pkt)
		return
	}
	m.writeNextPacketAudio(d)
}

// drainTarget picks the queue after the process stage.
func (m *Muxer) drainTarget() *queue[pktMuxData] {
	if m.encodeEnabled {
		return m.qAudioEnc
	}
	return m.qAudioOut
}

// addAudQueue forwards a record to a downstream stage queue.
func (m *Muxer) addAudQueue(d *pktMuxData, q *queue[pktMuxData]) {
	if !q.push(*d) {
		m.fatal(fmt.Errorf("%w: stage queue closed", ErrMuxFatal))
		return
	}
	switch q {
	case m.qAudioEnc:
		m.evEncAdded.set()
	default:
		m.evOutputAdded.set()
	}
}

// flushAllAudio drains every audio track and marks the drain complete
// by pushing the dts clock to the far future.
func (m *Muxer) flushAllAudio(dts *int64) {
	for _, a := range m.audio {
		m.audioFlushStream(a, dts)
	}
	// Far-future marker; kept shy of MaxInt64 so window arithmetic
	// cannot overflow.
	*dts = math.MaxInt64 / 4
	m.log.Debug("flushed audio buffers")
}

// writeNextPacketAudio runs the front half of the audio chain: BSF,
// pass-through sample accounting, or decode + filter, then sub-stream
// fan-out.
func (m *Muxer) writeNextPacketAudio(d *pktMuxData) {
	a := d.audio
	if a == nil {
		m.fatal(fmt.Errorf("%w: no track for audio packet stream=%d track=%d", ErrMuxFatal, d.pkt.StreamIndex, d.pkt.TrackID))
		return
	}

	samplerate := media.R(1, int64(a.In.SampleRate))
	nSamples := int(media.Rescale(d.pkt.Duration, a.In.TimeBase, samplerate))
	silenceForBSF := false

	if a.BSF != nil {
		out, err := a.BSF.Filter(d.pkt)
		switch {
		case err == nil:
			a.BSFErrorStreak = 0
			d.pkt = out
			if a.In.SubStream == 0 && !m.bsfExtradataInstalled(a) {
				m.installBSFExtradata(a)
			}
		case errors.Is(err, codec.ErrAgain):
			// Packet absorbed; nothing to write.
			return
		default:
			a.BSFErrorStreak++
			if a.BSFErrorStreak > aacBSFErrorThreshold {
				m.fatal(fmt.Errorf("%w: aac bitstream filter failed %d times: %v", ErrMuxFatal, a.BSFErrorStreak, err))
				return
			}
			m.log.Warn("aac bitstream filter failed", "track", a.In.TrackID, "error", err)
			if a.PacketsWritten == 0 {
				// Keep A/V sync by shifting the whole track instead.
				a.DelaySamples += int64(nSamples)
				return
			}
			if !a.Transcode() {
				return
			}
			silenceForBSF = true
		}
	}
	a.PacketsWritten++

	if !a.Transcode() {
		d.samples = m.passthroughSamples(a, d.pkt)
		a.LastPTSIn = d.pkt.PTS
		m.forwardProcessed(d)
		return
	}

	if a.DecodeErrors > a.IgnoreDecodeErrors || a.EncodeError {
		return
	}

	var frame *media.Frame
	if silenceForBSF {
		if !a.ResamplerResolved() {
			m.fatal(fmt.Errorf("%w: cannot synthesize silence before track %d is resolved", ErrMuxFatal, a.In.TrackID))
			return
		}
		frame = media.Silence(a.ResampleIn.Format, a.ResampleIn.Layout, a.ResampleIn.Channels, a.ResampleIn.SampleRate, nSamples)
		d.gotResult = true
	} else {
		frame, d.gotResult = m.audioDecodePacket(a, d.pkt)
	}
	d.kind = kindFrame
	d.frame = frame
	d.pkt = nil

	if d.gotResult {
		if !m.audioFilterFrame(d) {
			return
		}
	}
	m.writeNextPacketToSubtracks(d)
}

// bsfExtradataInstalled reports whether the BSF's captured config has
// reached the container stream.
func (m *Muxer) bsfExtradataInstalled(a *track.Audio) bool {
	return a.In.Extradata != nil
}

// installBSFExtradata copies the AudioSpecificConfig captured by the
// BSF into the container stream descriptor.
func (m *Muxer) installBSFExtradata(a *track.Audio) {
	asc := a.BSF.Extradata()
	if asc == nil {
		return
	}
	a.In.Extradata = asc
	if err := m.writer.SetExtradata(a.StreamIndex, asc); err != nil {
		m.fatal(fmt.Errorf("%w: install aac extradata: %v", ErrMuxFatal, err))
		return
	}
	m.log.Debug("installed aac extradata", "track", a.In.TrackID, "size", len(asc))
}

// passthroughSamples computes the sample count of a copied packet.
// A 1/1000 input timebase is untrusted: the declared frame size wins.
// Otherwise a pts delta that contradicts the stated duration recomputes
// the count, but only below one video frame so trim gaps don't register
// as drift.
func (m *Muxer) passthroughSamples(a *track.Audio, pkt *media.Packet) int {
	samplerate := media.R(1, int64(a.In.SampleRate))
	samples := int(media.Rescale(pkt.Duration, a.In.TimeBase, samplerate))
	if a.In.TimeBase.Eq(media.R(1, 1000)) && a.In.FrameSize > 0 {
		return a.In.FrameSize
	}
	if a.LastPTSIn != media.NoPTS {
		ptsDiff := pkt.PTS - a.LastPTSIn
		oneVideoFrame := media.Rescale(1, m.cfg.FPS.Inv(), samplerate)
		diffSamples := media.Rescale(ptsDiff, a.In.TimeBase, samplerate)
		if ptsDiff > 0 && diffSamples < oneVideoFrame && abs64(ptsDiff-pkt.Duration) > 1 {
			samples = int(diffSamples)
		}
	}
	return samples
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// forwardProcessed hands a finished record to the output stage, or
// writes it inline when no stage threading is active.
func (m *Muxer) forwardProcessed(d *pktMuxData) {
	if m.processEnabled {
		m.addAudQueue(d, m.drainTarget())
		return
	}
	m.writeNextPacketProcessed(d)
}

// audioDecodePacket feeds the decoder, prepending any undecoded
// remainder from the previous packet, and concatenates every frame the
// decoder yields. Decode errors under budget synthesize silence of the
// packet's duration.
func (m *Muxer) audioDecodePacket(a *track.Audio, pkt *media.Packet) (*media.Frame, bool) {
	if a.DecodeErrors > a.IgnoreDecodeErrors {
		return nil, false
	}
	data := pkt.Data
	if len(a.DecodeRemainder) > 0 {
		data = append(a.DecodeRemainder, pkt.Data...)
		a.DecodeRemainder = nil
	}

	var out *media.Frame
	for len(data) > 0 {
		frame, consumed, err := a.Decoder.Decode(data, pkt.Duration, a.In.TimeBase)
		if err != nil {
			a.DecodeErrors++
			m.log.Warn("failed to decode audio", "track", a.In.TrackID, "errors", a.DecodeErrors, "error", err)
			if a.DecodeErrors > a.IgnoreDecodeErrors {
				m.fatal(fmt.Errorf("%w: audio decode failed %d times on track %d", ErrMuxFatal, a.DecodeErrors, a.In.TrackID))
				return out, out != nil
			}
			if !a.ResamplerResolved() {
				m.fatal(fmt.Errorf("%w: decode error before track %d resolved", ErrMuxFatal, a.In.TrackID))
				return out, out != nil
			}
			samplerate := media.R(1, int64(a.ResampleIn.SampleRate))
			n := int(media.Rescale(pkt.Duration, a.In.TimeBase, samplerate))
			frame = media.Silence(a.ResampleIn.Format, a.ResampleIn.Layout, a.ResampleIn.Channels, a.ResampleIn.SampleRate, n)
			consumed = len(data)
		} else {
			a.DecodeErrors = 0
		}
		if frame != nil && frame.NbSamples > 0 {
			if out == nil {
				out = frame
			} else {
				out = media.Concat(out, frame)
			}
		}
		if consumed == 0 {
			// Decoder wants more data: keep the tail for next packet.
			a.DecodeRemainder = append([]byte(nil), data...)
			break
		}
		data = data[consumed:]
	}
	return out, out != nil && out.NbSamples > 0
}

// audioFilterFrame pushes the record's frame through the track filter,
// reinitializing on parameter drift, and replaces it with the
// coalesced filter output. It reports false on fatal error.
func (m *Muxer) audioFilterFrame(d *pktMuxData) bool {
	a := d.audio
	if a.Filter == nil {
		return true
	}
	if d.frame != nil {
		in := codec.ResampleParams{
			Channels:   d.frame.Channels,
			Layout:     d.frame.Layout,
			SampleRate: d.frame.SampleRate,
			Format:     d.frame.Format,
		}
		if in != a.FilterIn {
			// Flush the graph against the old parameters, route the
			// tail downstream, then adopt the new ones.
			flush := pktMuxData{kind: kindFrame, audio: a, gotResult: true}
			if m.drainFilter(a, &flush) && flush.frame != nil {
				m.writeNextPacketToSubtracks(&flush)
			}
			a.FilterIn = in
			m.log.Debug("audio filter reinitialized", "track", a.In.TrackID)
		}
	}
	if err := a.Filter.Push(d.frame); err != nil {
		m.fatal(fmt.Errorf("%w: audio filter: %v", ErrMuxFatal, err))
		return false
	}
	d.frame = nil
	return m.drainFilter(a, d)
}

// drainFilter pulls every ready frame out of the filter, coalescing
// into d.frame. It reports false on fatal error.
func (m *Muxer) drainFilter(a *track.Audio, d *pktMuxData) bool {
	for {
		f, err := a.Filter.Drain()
		if err != nil {
			m.fatal(fmt.Errorf("%w: audio filter drain: %v", ErrMuxFatal, err))
			return false
		}
		if f == nil {
			return true
		}
		if d.frame == nil {
			d.frame = f
		} else {
			d.frame = media.Concat(d.frame, f)
		}
	}
}

// writeNextPacketToSubtracks clones the decoded frame into every
// secondary sub-stream of the track, then continues with the primary.
func (m *Muxer) writeNextPacketToSubtracks(d *pktMuxData) {
	for sub := 1; ; sub++ {
		subTrack := m.audioByTriple(d.audio.In.TrackID, sub)
		if subTrack == nil {
			break
		}
		clone := *d
		clone.audio = subTrack
		if d.frame != nil {
			clone.frame = d.frame.Clone()
		}
		m.writeNextPacketAudioFrame(&clone)
	}
	m.writeNextPacketAudioFrame(d)
}

// writeNextPacketAudioFrame resamples the frame and cuts it into
// encoder frame_size slices, carrying remainders between calls.
func (m *Muxer) writeNextPacketAudioFrame(d *pktMuxData) {
	a := d.audio
	if !d.gotResult {
		m.freeFrame(d)
		return
	}
	if !m.audioResampleFrame(a, d) {
		m.freeFrame(d)
		return
	}
	if d.frame == nil {
		return
	}

	frameSize := a.Encoder.FrameSize()
	if a.Carry == nil && (frameSize == 0 || d.frame.NbSamples == frameSize) {
		m.encodeOrQueue(d)
		return
	}

	whole := d.frame
	if a.Carry != nil {
		whole = media.Concat(a.Carry, d.frame)
		a.Carry = nil
	}
	written := 0
	for whole.NbSamples-written >= frameSize && frameSize > 0 {
		slice := whole.Slice(written, frameSize)
		part := *d
		part.kind = kindFrame
		part.frame = slice
		m.encodeOrQueue(&part)
		written += frameSize
	}
	if rem := whole.NbSamples - written; rem > 0 {
		if frameSize == 0 {
			part := *d
			part.frame = whole.Slice(written, rem)
			m.encodeOrQueue(&part)
		} else {
			a.Carry = whole.Slice(written, rem)
		}
	}
	d.frame = nil
}

// encodeOrQueue routes a cut frame to the encode goroutine when one
// exists, or encodes inline.
func (m *Muxer) encodeOrQueue(d *pktMuxData) {
	if m.encodeEnabled {
		m.addAudQueue(d, m.qAudioEnc)
		return
	}
	m.writeNextAudioFrame(d)
}

// writeNextAudioFrame encodes one frame slice and forwards the packet.
// Non-frame records arriving here (subtitles, drains, riding the
// encode queue) pass straight to the output queue.
func (m *Muxer) writeNextAudioFrame(d *pktMuxData) {
	if d.kind != kindFrame {
		if m.encodeEnabled {
			m.addAudQueue(d, m.qAudioOut)
		}
		return
	}
	a := d.audio
	pkt, err := a.Encoder.Encode(d.frame)
	d.frame = nil
	if err != nil {
		m.log.Warn("failed to encode audio", "track", a.In.TrackID, "error", err)
		a.EncodeError = true
		return
	}
	if pkt == nil {
		return
	}
	d.kind = kindPacket
	d.pkt = pkt
	d.samples = int(pkt.Duration)
	if d.samples == 0 {
		return
	}
	if m.processEnabled {
		m.addAudQueue(d, m.qAudioOut)
		return
	}
	m.writeNextPacketProcessed(d)
}

// audioResampleFrame runs the resampler, reinitializing on parameter
// drift. It reports false on fatal error.
func (m *Muxer) audioResampleFrame(a *track.Audio, d *pktMuxData) bool {
	if a.Resampler == nil {
		return true
	}
	if d.frame != nil {
		in := codec.ResampleParams{
			Channels:   d.frame.Channels,
			Layout:     d.frame.Layout,
			SampleRate: d.frame.SampleRate,
			Format:     d.frame.Format,
		}
		if in != a.Resampler.In {
			a.Resampler = codec.NewResampler(in, a.Resampler.Out, a.Resampler.Mapping)
			a.ResampleIn = in
			m.log.Debug("audio resampler reinitialized", "track", a.In.TrackID,
				"rate", in.SampleRate, "channels", in.Channels)
		}
	}
	out, err := a.Resampler.Convert(d.frame)
	if err != nil {
		m.fatal(fmt.Errorf("%w: audio resample on track %d: %v", ErrMuxFatal, a.In.TrackID, err))
		return false
	}
	d.frame = out
	return true
}

// freeFrame discards a dead record's frame.
func (m *Muxer) freeFrame(d *pktMuxData) {
	d.frame = nil
}

// writeNextPacketProcessed is the terminal audio write: stamps output
// timestamps from the running sample clock and hands the packet to the
// container.
func (m *Muxer) writeNextPacketProcessed(d *pktMuxData) {
	if d.drain {
		m.flushAllAudio(&d.dts)
		return
	}
	a := d.audio
	if d.samples == 0 {
		return
	}
	samplerate := media.R(1, int64(a.OutputSampleRate()))
	pkt := d.pkt
	pkt.StreamIndex = a.StreamIndex
	pkt.TimeBase = a.TimeBaseOut
	pkt.Key = true
	pkt.DTS = media.Rescale(a.SamplesOut+a.DelaySamples, samplerate, a.TimeBaseOut)
	pkt.PTS = pkt.DTS
	pkt.Duration = media.Rescale(int64(d.samples), samplerate, a.TimeBaseOut)
	if pkt.Duration == 0 {
		pkt.Duration = pkt.PTS - a.LastPTSOut
	}
	a.LastPTSOut = pkt.PTS
	d.dts = media.Rescale(pkt.DTS, a.TimeBaseOut, nativeTB)
	m.writeToContainer(pkt)
	a.SamplesOut += int64(d.samples)
}

// audioFlushStream drains decoder, filter, resampler, and encoder in
// order at end of stream.
func (m *Muxer) audioFlushStream(a *track.Audio, dts *int64) {
	// Decoder tail.
	for a.Decoder != nil && a.OwnsDecoder && !a.EncodeError {
		frame, err := a.Decoder.Flush()
		if err != nil || frame == nil || frame.NbSamples == 0 {
			break
		}
		d := pktMuxData{kind: kindFrame, frame: frame, audio: a, gotResult: true}
		if m.audioFilterFrame(&d) && d.frame != nil {
			m.writeNextPacketToSubtracks(&d)
		}
	}
	// Filter tail.
	if a.Filter != nil {
		d := pktMuxData{kind: kindFrame, audio: a, gotResult: true}
		if err := a.Filter.Push(nil); err == nil {
			if m.drainFilter(a, &d) && d.frame != nil {
				m.writeNextPacketToSubtracks(&d)
			}
		}
	}
	// Resampler tail.
	for a.Resampler != nil && !a.EncodeError {
		out, err := a.Resampler.Convert(nil)
		if err != nil || out == nil {
			break
		}
		d := pktMuxData{kind: kindFrame, frame: out, audio: a, gotResult: true}
		m.writeNextPacketAudioFrame(&d)
	}
	// Carry remainder: the final short frame is legal output.
	if a.Carry != nil && a.Encoder != nil && !a.EncodeError {
		d := pktMuxData{kind: kindFrame, frame: a.Carry, audio: a, gotResult: true}
		a.Carry = nil
		m.writeNextAudioFrame(&d)
	}
	// Encoder tail.
	for a.Encoder != nil && !a.EncodeError {
		pkt, err := a.Encoder.Encode(nil)
		if err != nil || pkt == nil || pkt.Duration == 0 {
			break
		}
		d := pktMuxData{kind: kindPacket, pkt: pkt, audio: a, samples: int(pkt.Duration)}
		m.writeNextPacketProcessed(&d)
		if d.dts > *dts {
			*dts = d.dts
		}
	}
}
