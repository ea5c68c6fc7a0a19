package transport

import (
	"io"
	"net"
	"sync"

	"github.com/multiscale/muscle3-sub001/pkg/protocol/stream"
)

type streamConn struct {
	rwc       io.ReadWriteCloser
	fc        *stream.Conn
	remote    net.Addr
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn frames rwc with 8-byte length prefixes.
func NewStreamConn(rwc io.ReadWriteCloser, remote net.Addr) Conn {
	return &streamConn{rwc: rwc, fc: stream.New(rwc), remote: remote}
}

func (c *streamConn) SendBytes(b []byte) error   { return c.fc.Send(b) }
func (c *streamConn) RecvBytes() ([]byte, error) { return c.fc.Recv() }
func (c *streamConn) RemoteAddr() net.Addr       { return c.remote }

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
	return c.closeErr
}
