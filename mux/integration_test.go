package mux

import (
	"bytes"
	"testing"
	"time"

	"github.com/zsiec/transmux/codec"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/track"
)

// TestThreadedPipeline runs the full three-goroutine configuration:
// video through the output queue, audio through process and encode
// stages, with the drain sentinel and cooperative shutdown.
func TestThreadedPipeline(t *testing.T) {
	t.Parallel()
	w := newFakeWriter("mpegts")
	dec := &fakeDecoder{channels: 2, sampleRate: 48000}
	enc := &fakeEncoder{frameSize: 1024, channels: 2, sampleRate: 48000}
	src := pcmDesc(1, 1, 48000, 2)
	src.Codec = media.CodecAAC

	cfg := Config{
		Writer:         w,
		VideoCodec:     media.CodecH264,
		FPS:            media.R(30, 1),
		CFR:            true,
		DTSUnavailable: true,
		OutputThreads:  1,
		AudioThreads:   2,
		Audio: []AudioStream{{
			Source:     src,
			Encode:     true,
			NewDecoder: func(track.StreamDesc) (codec.Decoder, error) { return dec, nil },
			NewEncoder: func(codec.ResampleParams) (codec.Encoder, error) { return enc, nil },
		}},
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	const videoFrames = 90
	const audioPackets = 120

	done := make(chan error, 2)
	go func() {
		for i := 0; i < videoFrames; i++ {
			au := keyframeAU()
			if i > 0 {
				au = testJoin(testP)
			}
			if err := m.SubmitVideo(au, int64(i), media.NoPTS); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	go func() {
		for i := 0; i < audioPackets; i++ {
			if err := m.WritePacket(&media.Packet{
				Data:        bytes.Repeat([]byte{1}, 16),
				PTS:         int64(i * 1024),
				Duration:    1024,
				TimeBase:    media.R(1, 48000),
				StreamIndex: 1,
				TrackID:     1,
			}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("producers stalled")
		}
	}
	if err := m.WritePacket(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	vid := w.packetsFor(0)
	if len(vid) != videoFrames {
		t.Fatalf("video packets = %d, want %d", len(vid), videoFrames)
	}
	for i := 1; i < len(vid); i++ {
		if vid[i].DTS < vid[i-1].DTS {
			t.Fatalf("video dts regressed at %d", i)
		}
	}

	audio := w.packetsFor(1)
	var samples int64
	for i, p := range audio {
		samples += p.Duration
		if i > 0 && p.DTS < audio[i-1].DTS {
			t.Fatalf("audio dts regressed at %d", i)
		}
	}
	if want := int64(audioPackets * 1024); samples != want {
		t.Errorf("audio samples out = %d, want %d", samples, want)
	}
	if !w.trailer {
		t.Error("trailer not written after clean close")
	}
}

// TestEarlyEndingAudio feeds continuous video with audio that stops
// after one packet: the output thread must advance video alone instead
// of deadlocking on the dts window.
func TestEarlyEndingAudio(t *testing.T) {
	t.Parallel()
	w := newFakeWriter("mpegts")
	cfg := Config{
		Writer:         w,
		VideoCodec:     media.CodecH264,
		FPS:            media.R(30, 1),
		CFR:            true,
		DTSUnavailable: true,
		OutputThreads:  1,
		Audio:          []AudioStream{{Source: pcmDesc(1, 1, 48000, 2)}},
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// One early audio packet pins audioDts near zero.
	if err := m.WritePacket(&media.Packet{
		Data: bytes.Repeat([]byte{1}, 64), PTS: 0, Duration: 1024,
		TimeBase: media.R(1, 48000), StreamIndex: 1, TrackID: 1,
	}); err != nil {
		t.Fatal(err)
	}
	const frames = 300 // 10 seconds of video, far past the sync window
	for i := 0; i < frames; i++ {
		au := keyframeAU()
		if i > 0 {
			au = testJoin(testP)
		}
		if err := m.SubmitVideo(au, int64(i), media.NoPTS); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.WritePacket(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	vid := w.packetsFor(0)
	if len(vid) != frames {
		t.Fatalf("video packets = %d, want %d", len(vid), frames)
	}
	for i := 1; i < len(vid); i++ {
		if vid[i].DTS < vid[i-1].DTS {
			t.Fatalf("video dts regressed at %d after forced progress", i)
		}
	}
}

// TestThreadedHeaderDeferral checks that packets entering the staged
// pipeline before the first video unit still come out after the
// header, in order.
func TestThreadedHeaderDeferral(t *testing.T) {
	t.Parallel()
	w := newFakeWriter("mpegts")
	cfg := Config{
		Writer:         w,
		VideoCodec:     media.CodecH264,
		FPS:            media.R(30, 1),
		CFR:            true,
		DTSUnavailable: true,
		OutputThreads:  1,
		AudioThreads:   1,
		Audio:          []AudioStream{{Source: pcmDesc(1, 1, 48000, 2)}},
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if err := m.WritePacket(&media.Packet{
			Data: bytes.Repeat([]byte{1}, 64), PTS: int64(i * 1024), Duration: 1024,
			TimeBase: media.R(1, 48000), StreamIndex: 1, TrackID: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// Give the process goroutine time to run: nothing may be written.
	time.Sleep(50 * time.Millisecond)
	if w.header {
		t.Fatal("header written without video")
	}
	if err := m.SubmitVideo(keyframeAU(), 0, media.NoPTS); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	audio := w.packetsFor(1)
	if len(audio) != 8 {
		t.Fatalf("audio packets = %d, want 8", len(audio))
	}
	for i := 1; i < len(audio); i++ {
		if audio[i].DTS < audio[i-1].DTS {
			t.Fatalf("audio dts regressed at %d", i)
		}
	}
}
