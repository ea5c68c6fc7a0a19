//go:build windows

// Package winpipe carries pulls over Windows named pipes.
package winpipe

import (
	"context"

	"github.com/Microsoft/go-winio"
	"github.com/google/uuid"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

// Listen creates the named pipe, or a uniquely named one when pipeName is
// empty.
func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
	if pipeName == "" {
		pipeName = `\\.\pipe\muscle3-` + uuid.NewString()
	}
	l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{InputBufferSize: 64 << 10, OutputBufferSize: 64 << 10})
	if err != nil {
		return nil, err
	}
	return transport.NewNetListener(ctx, l, nil), nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (transport.Conn, error) {
	c, err := winio.DialPipeContext(ctx, pipeName)
	if err != nil {
		return nil, err
	}
	return transport.NewStreamConn(c, c.RemoteAddr()), nil
}
