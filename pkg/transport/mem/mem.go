// Package mem is an in-process transport over net.Pipe. Locations are only
// meaningful inside the process that owns the Transport.
package mem

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

// Listen registers name, or a fresh unique name when name is empty.
func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	if name == "" {
		name = "po-" + uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, fmt.Errorf("mem: listener %q already exists", name)
	}
	l := &listener{name: name, newCh: make(chan transport.Conn), closeCh: make(chan struct{})}
	l.onClose = func() {
		t.mu.Lock()
		if t.listeners[name] == l {
			delete(t.listeners, name)
		}
		t.mu.Unlock()
	}
	t.listeners[name] = l
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.closeCh:
		}
	}()
	return l, nil
}

// Dial connects to a listener in this Transport. It blocks until the
// listener accepts, ctx ends, or the listener closes.
func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, fmt.Errorf("mem: no listener %q", name)
	}
	c1, c2 := net.Pipe()
	srv := transport.NewStreamConn(c1, memAddr("client"))
	cli := transport.NewStreamConn(c2, memAddr(name))
	select {
	case l.newCh <- srv:
		return cli, nil
	case <-l.closeCh:
		_ = c1.Close()
		_ = c2.Close()
		return nil, fmt.Errorf("mem: listener %q closed", name)
	case <-ctx.Done():
		_ = c1.Close()
		_ = c2.Close()
		return nil, ctx.Err()
	}
}

type listener struct {
	name      string
	newCh     chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func (l *listener) Addr() net.Addr      { return memAddr(l.name) }
func (l *listener) Addresses() []string { return []string{l.name} }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, transport.ErrListenerClosed
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.onClose()
	})
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
