package mux

import (
	"math"
	"runtime"
	"time"
)

// waitThreshold is how many consecutive empty polls of one queue, with
// the other near capacity, the output loop tolerates before giving up
// on synchronizing against the empty side.
const waitThreshold = 32

// processLoop is the audio-process goroutine: BSF, decode, filter,
// fan-out, resample, and frame cutting.
func (m *Muxer) processLoop() {
	m.evProcAdded.wait(0)
	for !m.abortProc.Load() {
		if !m.headerWritten.Load() {
			time.Sleep(time.Millisecond)
		} else {
			for {
				d, ok := m.qAudioProc.pop()
				if !ok {
					break
				}
				m.writeNextPacketInternal(&d)
			}
		}
		m.evProcAdded.wait(16 * time.Millisecond)
	}
	for {
		d, ok := m.qAudioProc.pop()
		if !ok {
			break
		}
		m.writeNextPacketInternal(&d)
	}
	m.evProcClosed.set()
}

// encodeLoop is the audio-encode goroutine: encoder submission and
// packet assembly.
func (m *Muxer) encodeLoop() {
	m.evEncAdded.wait(0)
	for !m.abortEnc.Load() {
		if !m.headerWritten.Load() {
			time.Sleep(time.Millisecond)
		} else {
			for {
				d, ok := m.qAudioEnc.pop()
				if !ok {
					break
				}
				m.writeNextAudioFrame(&d)
			}
		}
		m.evEncAdded.wait(16 * time.Millisecond)
	}
	for {
		d, ok := m.qAudioEnc.pop()
		if !ok {
			break
		}
		m.writeNextAudioFrame(&d)
	}
	m.evEncClosed.set()
}

// outputLoop is the interleaved writer: it alternates between the
// audio and video output queues under the dts window, forces progress
// when one side starves while the other backs up, and performs the
// final synchronized drain at shutdown.
func (m *Muxer) outputLoop() {
	videoThreshold := min(3072, m.qVideo.capacity()) - waitThreshold
	audioThreshold := min(6144, m.qAudioOut.capacity()) - waitThreshold

	// dts state per side: -1 means "nothing seen, don't gate on me", a
	// far-future value means "this side does not exist" (kept shy of
	// MaxInt64 so adding the window cannot overflow).
	audioDts := int64(math.MaxInt64 / 4)
	if len(m.audio) > 0 || len(m.subs) > 0 {
		audioDts = -1
	}
	videoDts := int64(math.MaxInt64 / 4)
	if m.video != nil {
		videoDts = -1
	}

	window := m.dtsThreshold()
	m.evOutputAdded.wait(0)
	audPacketsPerSec := 64
	waitAudio := 0
	waitVideo := 0

	writeProcessed := func(d *pktMuxData) {
		if !m.processEnabled {
			m.writeNextPacketInternal(d)
			return
		}
		if d.kind == kindPacket && !d.drain && d.pkt != nil && d.pkt.TrackID < 0 {
			m.subtitleWritePacket(d.pkt)
			return
		}
		m.writeNextPacketProcessed(d)
	}

	for !m.abortOutput.Load() {
		audioExists := false
		videoExists := false
		for {
			if !m.headerWritten.Load() {
				time.Sleep(time.Millisecond)
				// Audio can stall waiting for the video header if its
				// staging queue saturates first; give it room.
				q := m.qAudioOut
				if m.encodeEnabled {
					q = m.qAudioEnc
				}
				if q.size() >= q.capacity() {
					q.setCapacity(q.capacity() * 3 / 2)
				}
				break
			}
			audioExists = false
			videoExists = false

			for videoDts < 0 || audioDts <= videoDts+window {
				d, ok := m.qAudioOut.pop()
				if !ok {
					break
				}
				audioExists = true
				if d.audio != nil && d.pkt != nil && d.audio.In.SampleRate > 0 && d.pkt.Duration > 0 {
					pps := int(1.0/(d.audio.In.TimeBase.Seconds()*float64(d.pkt.Duration)) + 0.5)
					if pps > audPacketsPerSec {
						audPacketsPerSec = pps
					}
					if m.qAudioOut.capacity() < audPacketsPerSec*4 {
						m.qAudioOut.setCapacity(audPacketsPerSec * 4)
					}
				}
				writeProcessed(&d)
				if d.dts > audioDts {
					audioDts = d.dts
				}
				waitAudio = 0
			}

			for audioDts < 0 || videoDts <= audioDts+window {
				buf, ok := m.qVideo.pop()
				if !ok {
					break
				}
				videoExists = true
				m.writeNextFrameInternal(buf, &videoDts)
				waitVideo = 0
			}

			// Forced progress: a starved side with the other backed up
			// stops gating the window after enough consecutive misses.
			if m.qAudioOut.size() == 0 && m.qVideo.size() > videoThreshold {
				waitAudio++
				if waitAudio <= waitThreshold {
					break
				}
				audioDts = -1
			}
			if m.qVideo.size() == 0 && m.qAudioOut.size() > audioThreshold {
				waitVideo++
				if waitVideo <= waitThreshold {
					break
				}
				videoDts = -1
			}
			if !audioExists && !videoExists {
				break
			}
		}

		// Quiet queues wait on the packet-added signal; busy queues
		// keep the thread hot.
		if float64(m.qVideo.size()) < float64(m.qVideo.capacity())*0.5 &&
			float64(m.qAudioOut.size()) < float64(m.qAudioOut.capacity())*0.5 {
			m.evOutputAdded.wait(16 * time.Millisecond)
		} else {
			runtime.Gosched()
		}
	}

	m.evOutputClosed.set()

	// Final synchronized drain.
	audioExists := m.qAudioOut.size() > 0
	videoExists := m.qVideo.size() > 0
	for audioExists && videoExists {
		for audioDts <= videoDts+window {
			d, ok := m.qAudioOut.pop()
			if !ok {
				audioExists = false
				break
			}
			writeProcessed(&d)
			if d.dts > audioDts {
				audioDts = d.dts
			}
		}
		for videoDts <= audioDts+window {
			buf, ok := m.qVideo.pop()
			if !ok {
				videoExists = false
				break
			}
			m.writeNextFrameInternal(buf, &videoDts)
		}
		audioExists = m.qAudioOut.size() > 0
		videoExists = m.qVideo.size() > 0
	}
	for {
		d, ok := m.qAudioOut.pop()
		if !ok {
			break
		}
		writeProcessed(&d)
	}
	for {
		buf, ok := m.qVideo.pop()
		if !ok {
			break
		}
		var dts int64
		m.writeNextFrameInternal(buf, &dts)
	}
}
