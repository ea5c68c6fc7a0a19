// Package tcp is the reference transport: one TCP connection per client,
// frames as 8-byte length prefixes.
package tcp

import (
	"context"
	"net"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

type Transport struct {
	dialer net.Dialer
	lc     net.ListenConfig
}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

// Listen binds address, or every interface on a free port when address is
// empty.
func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if address == "" {
		address = ":0"
	}
	l, err := t.lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return transport.NewNetListener(ctx, l, transport.ExpandAddr), nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return transport.NewStreamConn(c, c.RemoteAddr()), nil
}
