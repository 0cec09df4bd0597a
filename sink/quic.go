package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/quic-go/quic-go"
)

// QUIC streams the muxed output over a unidirectional QUIC stream to a
// remote receiver. Seeking is not supported.
type QUIC struct {
	log    *slog.Logger
	conn   quic.Connection
	stream quic.SendStream
}

// quicALPN identifies the muxed-output stream protocol.
const quicALPN = "transmux"

// DialQUIC connects to addr and opens the output stream. With
// insecure set, the server certificate is not verified (matching
// self-signed deployments).
func DialQUIC(ctx context.Context, addr string, insecure bool, log *slog.Logger) (*QUIC, error) {
	if log == nil {
		log = slog.Default()
	}
	tlsConf := &tls.Config{
		InsecureSkipVerify: insecure,
		NextProtos:         []string{quicALPN},
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("QUIC dial %s: %w", addr, err)
	}
	stream, err := conn.OpenUniStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("QUIC open stream: %w", err)
	}
	log.With("component", "quic-sink").Info("connected", "addr", addr)
	return &QUIC{log: log.With("component", "quic-sink"), conn: conn, stream: stream}, nil
}

func (s *QUIC) Write(p []byte) (int, error) { return s.stream.Write(p) }

func (s *QUIC) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNoSeek
}

// Close finishes the stream and closes the connection.
func (s *QUIC) Close() error {
	if err := s.stream.Close(); err != nil {
		s.conn.CloseWithError(1, "stream close failed")
		return err
	}
	return s.conn.CloseWithError(0, "")
}
