package sink

import (
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/pion/rtp"
)

// MP2T payload type (RFC 3551) and packets per RTP payload.
const (
	rtpPayloadTypeMP2T = 33
	tsPacketSize       = 188
	tsPacketsPerRTP    = 7
)

// RTP wraps a TS byte stream in RTP packets (MP2T payload, 7 TS
// packets per datagram) and writes them to a UDP destination.
type RTP struct {
	log  *slog.Logger
	conn io.WriteCloser
	ssrc uint32

	seq  uint16
	ts   uint32
	buf  []byte
}

// DialRTP opens a UDP socket to addr for RTP output.
func DialRTP(addr string, ssrc uint32, log *slog.Logger) (*RTP, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("RTP dial %s: %w", addr, err)
	}
	log.With("component", "rtp-sink").Info("connected", "addr", addr)
	return &RTP{log: log.With("component", "rtp-sink"), conn: conn, ssrc: ssrc}, nil
}

// Write buffers TS bytes and emits one RTP packet per 7 complete TS
// packets.
func (s *RTP) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	const chunk = tsPacketSize * tsPacketsPerRTP
	for len(s.buf) >= chunk {
		if err := s.send(s.buf[:chunk]); err != nil {
			return 0, err
		}
		s.buf = s.buf[chunk:]
	}
	return len(p), nil
}

func (s *RTP) send(payload []byte) error {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    rtpPayloadTypeMP2T,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("RTP marshal: %w", err)
	}
	if _, err := s.conn.Write(raw); err != nil {
		return fmt.Errorf("RTP write: %w", err)
	}
	s.seq++
	s.ts++ // MP2T receivers recover timing from the TS PCR, not this field
	return nil
}

func (s *RTP) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNoSeek
}

// Close sends any trailing partial chunk as is, without padding, then
// closes the socket.
func (s *RTP) Close() error {
	if len(s.buf) > 0 {
		if err := s.send(s.buf); err != nil {
			s.conn.Close()
			return err
		}
		s.buf = nil
	}
	return s.conn.Close()
}
