// Package stream frames byte messages over a byte stream: an 8-byte int64
// length in native byte order followed by exactly that many payload bytes.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds a single frame. Larger or negative lengths are
// rejected before any allocation.
const MaxFrameSize = 1 << 30

const prefixSize = 8

// ErrFrameSize reports a length prefix outside [0, MaxFrameSize].
var ErrFrameSize = errors.New("stream: invalid frame size")

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, b []byte) error {
	if len(b) > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameSize, len(b))
	}
	var prefix [prefixSize]byte
	binary.NativeEndian.PutUint64(prefix[:], uint64(int64(len(b))))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadFrame reads one frame from r. It returns io.EOF only when the stream
// ends cleanly before a frame starts; a stream that ends inside a frame yields
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := int64(binary.NativeEndian.Uint64(prefix[:]))
	if n < 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameSize, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// Conn sends and receives frames over an io.ReadWriter. Send may be called
// concurrently; Recv expects a single reader.
type Conn struct {
	mu sync.Mutex
	br *bufio.Reader
	bw *bufio.Writer
}

func New(rw io.ReadWriter) *Conn {
	return &Conn{br: bufio.NewReader(rw), bw: bufio.NewWriter(rw)}
}

// Send writes b as one frame and flushes it.
func (c *Conn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteFrame(c.bw, b); err != nil {
		return err
	}
	return c.bw.Flush()
}

// Recv reads the next frame.
func (c *Conn) Recv() ([]byte, error) { return ReadFrame(c.br) }
