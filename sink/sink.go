// Package sink provides the byte sinks the container writer targets: a
// buffered seekable file, a pipe, and seekless network egress over SRT,
// QUIC, or RTP.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNoSeek is returned by sinks that cannot reposition; containers
// that finalize by seeking reject such sinks at init time.
var ErrNoSeek = errors.New("sink does not support seek")

// Sink is the byte-level output contract: sequential writes plus
// optional seeking for containers that rewrite their header.
type Sink interface {
	io.Writer
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// Buffer sizing policy. The external buffer is operator-tunable in
// MiB; the internal buffer scales with whether video is present.
const (
	// MaxBufferMB caps the external write-back buffer.
	MaxBufferMB = 2048

	internalBufBase    = 1 << 20  // 1 MiB
	internalBufVideo   = 8 << 20  // with a video stream
	internalBufMinimal = 128 << 10 // when no external buffer is requested
)

// FileConfig controls file sink buffering.
type FileConfig struct {
	// BufferMB is the external write-back buffer in MiB, clamped to
	// [0, MaxBufferMB]. Zero selects the minimal internal buffer.
	BufferMB int
	// HasVideo scales the internal buffer up for video-rate output.
	HasVideo bool
}

// InternalBufferSize resolves the internal buffer size for the config.
func (c FileConfig) InternalBufferSize() int {
	if c.ExternalBufferSize() == 0 {
		if c.HasVideo {
			return internalBufMinimal * 4
		}
		return internalBufMinimal
	}
	if c.HasVideo {
		return internalBufVideo
	}
	return internalBufBase
}

// ExternalBufferSize resolves the clamped external buffer size.
func (c FileConfig) ExternalBufferSize() int {
	mb := c.BufferMB
	if mb < 0 {
		mb = 0
	}
	if mb > MaxBufferMB {
		mb = MaxBufferMB
	}
	size := mb << 20
	if size > 0 && !c.HasVideo {
		// Audio-only output needs far less write-back.
		size /= 4
	}
	return size
}

// File is a seekable buffered file sink.
type File struct {
	f  *os.File
	bw *bufio.Writer
}

// OpenFile creates (truncating) the output file with the configured
// buffering.
func OpenFile(path string, cfg FileConfig) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	size := cfg.InternalBufferSize()
	if ext := cfg.ExternalBufferSize(); ext > size {
		size = ext
	}
	return &File{f: f, bw: bufio.NewWriterSize(f, size)}, nil
}

func (s *File) Write(p []byte) (int, error) { return s.bw.Write(p) }

// Seek flushes buffered bytes and repositions the file.
func (s *File) Seek(offset int64, whence int) (int64, error) {
	if err := s.bw.Flush(); err != nil {
		return 0, err
	}
	return s.f.Seek(offset, whence)
}

func (s *File) Close() error {
	if err := s.bw.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// Pipe wraps a sequential writer (stdout, a process pipe) as a sink.
// Seeking fails with ErrNoSeek.
type Pipe struct {
	w io.Writer
}

// NewPipe wraps w.
func NewPipe(w io.Writer) *Pipe { return &Pipe{w: w} }

func (s *Pipe) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *Pipe) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNoSeek
}

func (s *Pipe) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
