package sink

import (
	"fmt"
	"log/slog"

	srtgo "github.com/zsiec/srtgo"
)

// srtPayloadSize is the standard SRT payload: 7 MPEG-TS packets.
const srtPayloadSize = 1316

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// SRT streams the muxed output to a remote SRT listener in caller
// mode. Writes are chunked to the SRT payload size; seeking is not
// supported.
type SRT struct {
	log  *slog.Logger
	conn *srtgo.Conn
	buf  []byte
}

// DialSRT connects to addr (host:port) with the given stream ID.
func DialSRT(addr, streamID string, log *slog.Logger) (*SRT, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = streamID
	conn, err := srtgo.Dial(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("SRT dial %s: %w", addr, err)
	}
	log.With("component", "srt-sink").Info("connected", "addr", addr, "stream_id", streamID)
	return &SRT{log: log.With("component", "srt-sink"), conn: conn}, nil
}

// Write buffers p and sends full SRT payloads.
func (s *SRT) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for len(s.buf) >= srtPayloadSize {
		if _, err := s.conn.Write(s.buf[:srtPayloadSize]); err != nil {
			return 0, fmt.Errorf("SRT write: %w", err)
		}
		s.buf = s.buf[srtPayloadSize:]
	}
	return len(p), nil
}

func (s *SRT) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNoSeek
}

// Close flushes the partial payload and closes the connection.
func (s *SRT) Close() error {
	if len(s.buf) > 0 {
		if _, err := s.conn.Write(s.buf); err != nil {
			s.conn.Close()
			return fmt.Errorf("SRT flush: %w", err)
		}
		s.buf = nil
	}
	return s.conn.Close()
}
