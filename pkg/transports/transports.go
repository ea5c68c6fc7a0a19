// Package transports builds transport implementations by kind.
package transports

import (
	"errors"
	"fmt"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
	"github.com/multiscale/muscle3-sub001/pkg/transport/mem"
	"github.com/multiscale/muscle3-sub001/pkg/transport/quic"
	"github.com/multiscale/muscle3-sub001/pkg/transport/tcp"
)

// ErrUnknownKind is returned for a kind with no implementation.
var ErrUnknownKind = errors.New("transports: unknown kind")

// NewByKind returns a fresh transport of kind k.
func NewByKind(k transport.Kind) (transport.Transport, error) {
	switch k {
	case transport.KindTCP:
		return tcp.New(), nil
	case transport.KindQUIC:
		t, err := quic.New()
		if err != nil {
			return nil, err
		}
		return t, nil
	case transport.KindMem:
		return mem.New(), nil
	case transport.KindWinPipe:
		return newWinPipeTransport()
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, k)
	}
}

// NewSet builds a set with one transport per listed kind name.
func NewSet(kinds ...string) (*transport.Set, error) {
	trs := make([]transport.Transport, 0, len(kinds))
	for _, name := range kinds {
		k, err := transport.ParseKind(name)
		if err != nil {
			return nil, err
		}
		t, err := NewByKind(k)
		if err != nil {
			return nil, err
		}
		trs = append(trs, t)
	}
	return transport.NewSet(trs...), nil
}

// Default returns the set every instance can dial out with: tcp and quic.
func Default() (*transport.Set, error) { return NewSet("tcp", "quic") }
