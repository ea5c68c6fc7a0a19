package transport

import (
	"context"
	"fmt"
	"net"
)

// Kind identifies a transport implementation. Its String form is the
// location scheme.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindWinPipe
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindWinPipe:
		return "winpipe"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// ParseKind maps a scheme name to its Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindTCP, KindQUIC, KindWinPipe, KindMem} {
		if k.String() == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown transport kind %q", s)
}

// Preference order across kinds; higher is better.
func baseRank(k Kind) int {
	switch k {
	case KindMem:
		return 120
	case KindQUIC:
		return 100
	case KindWinPipe:
		return 95
	case KindTCP:
		return 90
	default:
		return 0
	}
}

// Conn is a framed, bidirectional connection. SendBytes may be called
// concurrently with RecvBytes; each direction expects one goroutine.
type Conn interface {
	SendBytes([]byte) error
	RecvBytes() ([]byte, error)
	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until an inbound connection is available, the listener
	// is closed, or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the bound address.
	Addr() net.Addr
	// Addresses returns the addresses clients should dial, in preference
	// order. Unspecified hosts are expanded to concrete interface addresses.
	Addresses() []string
	Close() error
}

// Transport listens and dials connections of one Kind.
type Transport interface {
	Kind() Kind
	// Listen binds address; an empty address binds any available one. The
	// listener is closed when ctx ends.
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial connects to address. ctx bounds connection setup only.
	Dial(ctx context.Context, address string) (Conn, error)
}

// CanConnect reports whether t can reach location, judging by its scheme.
func CanConnect(t Transport, location string) bool {
	return HasScheme(location, t.Kind().String())
}
