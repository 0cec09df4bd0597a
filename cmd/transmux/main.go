package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/transmux/container/mpegts"
	"github.com/zsiec/transmux/input"
	"github.com/zsiec/transmux/media"
	"github.com/zsiec/transmux/mux"
	"github.com/zsiec/transmux/sink"
	"github.com/zsiec/transmux/track"
	"github.com/zsiec/transmux/trim"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	videoPath := envOr("VIDEO", "")
	audioPath := envOr("AUDIO", "")
	outPath := envOr("OUT", "out.ts")
	fps := parseFPS(envOr("FPS", "30/1"))
	codecName := envOr("CODEC", "h264")
	bufMB, _ := strconv.Atoi(envOr("BUF_MB", "0"))
	srtAddr := envOr("SRT_ADDR", "")
	quicAddr := envOr("QUIC_ADDR", "")
	rtpAddr := envOr("RTP_ADDR", "")

	if videoPath == "" && audioPath == "" {
		slog.Error("set VIDEO and/or AUDIO to input files (Annex B elementary stream, WAV)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	out, err := openSink(ctx, outPath, srtAddr, quicAddr, rtpAddr, sink.FileConfig{
		BufferMB: bufMB,
		HasVideo: videoPath != "",
	})
	if err != nil {
		slog.Error("failed to open output", "error", err)
		os.Exit(1)
	}
	defer out.Close()

	videoCodec := media.CodecUnknown
	if videoPath != "" {
		videoCodec = media.CodecH264
		if codecName == "hevc" || codecName == "h265" {
			videoCodec = media.CodecHEVC
		}
	}

	cfg := mux.Config{
		Writer:         mpegts.NewWriter(out),
		VideoCodec:     videoCodec,
		FPS:            fps,
		CFR:            true,
		DTSUnavailable: true,
		OutputThreads:  1,
		AudioThreads:   1,
		Trim:           parseTrim(envOr("TRIM", "")),
	}

	var wav *wavInput
	if audioPath != "" {
		wav, err = openWAV(audioPath)
		if err != nil {
			slog.Error("failed to open audio input", "error", err)
			os.Exit(1)
		}
		cfg.Audio = []mux.AudioStream{{
			Source: track.StreamDesc{
				Index:      1,
				TrackID:    1,
				Codec:      wav.codec,
				TimeBase:   media.R(1, int64(wav.sampleRate)),
				SampleRate: wav.sampleRate,
				Channels:   wav.channels,
				Layout:     media.DefaultLayout(wav.channels),
			},
		}}
	}

	m, err := mux.New(cfg)
	if err != nil {
		slog.Error("failed to create muxer", "error", err)
		os.Exit(1)
	}

	slog.Info("transmux starting", "version", version, "out", outPath, "fps",
		fmt.Sprintf("%d/%d", fps.Num, fps.Den))

	g, ctx := errgroup.WithContext(ctx)

	if videoPath != "" {
		g.Go(func() error {
			return feedVideo(ctx, m, videoPath, videoCodec, fps)
		})
	}
	if wav != nil {
		g.Go(func() error {
			return feedAudio(ctx, m, wav)
		})
	}

	err = g.Wait()
	if err == nil {
		err = m.WritePacket(nil) // drain sentinel
	}
	if cerr := m.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		slog.Error("mux failed", "error", err)
		os.Exit(1)
	}
	slog.Info("done")
}

// feedVideo streams access units from an Annex B file into the muxer
// through the elementary-stream source.
func feedVideo(ctx context.Context, m *mux.Muxer, path string, codec media.CodecID, fps media.Rational) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read video input: %w", err)
	}
	src := input.NewElementaryStream(data, codec, fps)
	slog.Info("video input parsed", "access_units", src.Info().Frames)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := src.ReadPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.SubmitVideo(pkt.Data, pkt.PTS, pkt.DTS); err != nil {
			return err
		}
	}
}

// feedAudio streams WAV sample chunks as pass-through PCM packets.
func feedAudio(ctx context.Context, m *mux.Muxer, w *wavInput) error {
	const chunkSamples = 1024
	bytesPerSample := w.bits / 8 * w.channels
	pts := int64(0)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf := make([]byte, chunkSamples*bytesPerSample)
		n, err := io.ReadFull(w.r, buf)
		if n == 0 {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		samples := n / bytesPerSample
		pkt := &media.Packet{
			Data:        buf[:samples*bytesPerSample],
			PTS:         pts,
			DTS:         pts,
			Duration:    int64(samples),
			TimeBase:    media.R(1, int64(w.sampleRate)),
			StreamIndex: 1,
			TrackID:     1,
		}
		if werr := m.WritePacket(pkt); werr != nil {
			return werr
		}
		pts += int64(samples)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
	}
}

// openSink selects the output sink: network egress when an address is
// configured, buffered file (or stdout pipe) otherwise.
func openSink(ctx context.Context, path, srtAddr, quicAddr, rtpAddr string, cfg sink.FileConfig) (sink.Sink, error) {
	switch {
	case srtAddr != "":
		return sink.DialSRT(srtAddr, envOr("SRT_STREAM_ID", "live/transmux"), nil)
	case quicAddr != "":
		return sink.DialQUIC(ctx, quicAddr, os.Getenv("QUIC_INSECURE") != "", nil)
	case rtpAddr != "":
		return sink.DialRTP(rtpAddr, 0x7A5D, nil)
	case path == "-":
		return sink.NewPipe(os.Stdout), nil
	default:
		return sink.OpenFile(path, cfg)
	}
}

// wavInput is a minimal RIFF/WAVE PCM reader.
type wavInput struct {
	r          io.Reader
	codec      media.CodecID
	sampleRate int
	channels   int
	bits       int
}

func openWAV(path string) (*wavInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s: not a RIFF/WAVE file", path)
	}
	w := &wavInput{r: f}
	for {
		chunk := make([]byte, 8)
		if _, err := io.ReadFull(f, chunk); err != nil {
			return nil, fmt.Errorf("wav chunk: %w", err)
		}
		size := int64(binary.LittleEndian.Uint32(chunk[4:]))
		switch string(chunk[0:4]) {
		case "fmt ":
			fmtData := make([]byte, size)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return nil, err
			}
			w.channels = int(binary.LittleEndian.Uint16(fmtData[2:]))
			w.sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:]))
			w.bits = int(binary.LittleEndian.Uint16(fmtData[14:]))
			switch w.bits {
			case 8:
				w.codec = media.CodecPCMU8
			case 16:
				w.codec = media.CodecPCMS16LE
			case 24:
				w.codec = media.CodecPCMS24LE
			case 32:
				w.codec = media.CodecPCMS32LE
			default:
				return nil, fmt.Errorf("wav: unsupported bit depth %d", w.bits)
			}
		case "data":
			return w, nil
		default:
			if _, err := f.Seek(size, io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseFPS reads "num/den" or a plain integer.
func parseFPS(s string) media.Rational {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, _ := strconv.ParseInt(num, 10, 64)
		d, _ := strconv.ParseInt(den, 10, 64)
		if n > 0 && d > 0 {
			return media.R(n, d)
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return media.R(n, 1)
	}
	return media.R(30, 1)
}

// parseTrim reads "start:end,start:end" frame ranges.
func parseTrim(s string) trim.List {
	if s == "" {
		return nil
	}
	var list trim.List
	for _, part := range strings.Split(s, ",") {
		start, end, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		a, err1 := strconv.Atoi(start)
		b, err2 := strconv.Atoi(end)
		if err1 != nil || err2 != nil {
			continue
		}
		list = append(list, trim.Range{Start: a, End: b})
	}
	return list
}
