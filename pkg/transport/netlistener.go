package transport

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("transport: listener closed")

type netListener struct {
	l         net.Listener
	addresses func(net.Addr) []string
	newCh     chan Conn
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// NewNetListener adapts a stream net.Listener. Accepted connections are
// framed with NewStreamConn and handed to Accept; none are dropped while
// the caller is busy. addresses expands the bound address for clients; nil
// reports Addr().String().
func NewNetListener(ctx context.Context, l net.Listener, addresses func(net.Addr) []string) Listener {
	nl := &netListener{
		l:         l,
		addresses: addresses,
		newCh:     make(chan Conn),
		closeCh:   make(chan struct{}),
	}
	go nl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = nl.Close()
		case <-nl.closeCh:
		}
	}()
	return nl
}

func (l *netListener) Addr() net.Addr { return l.l.Addr() }

func (l *netListener) Addresses() []string {
	if l.addresses == nil {
		return []string{l.l.Addr().String()}
	}
	return l.addresses(l.l.Addr())
}

func (l *netListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c := <-l.newCh:
		return c, nil
	case <-l.closeCh:
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.err != nil {
			return nil, l.err
		}
		return nil, ErrListenerClosed
	}
}

func (l *netListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.l.Close()
	})
	return err
}

func (l *netListener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
			default:
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
				_ = l.Close()
			}
			return
		}
		select {
		case l.newCh <- NewStreamConn(c, c.RemoteAddr()):
		case <-l.closeCh:
			_ = c.Close()
			return
		}
	}
}
