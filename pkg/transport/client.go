package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Client sends requests to one server location, one at a time.
type Client struct {
	location string
	address  string
	kind     Kind
	conn     Conn

	callMu    sync.Mutex
	closeOnce sync.Once
	closedCh  chan struct{}
	closeErr  error
}

// Connect dials each address of location in order and returns a client on
// the first that answers. If all fail the error is a *ConnectError.
func Connect(ctx context.Context, set *Set, location string) (*Client, error) {
	tr, loc, err := set.ForLocation(location)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, addr := range loc.Addresses {
		conn, err := tr.Dial(ctx, addr)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		zap.L().Info("client connected", zap.String("location", location), zap.String("addr", addr))
		return &Client{location: location, address: addr, kind: tr.Kind(), conn: conn, closedCh: make(chan struct{})}, nil
	}
	return nil, &ConnectError{Location: location, Errs: errs}
}

// Location returns the location this client was created for.
func (c *Client) Location() string { return c.location }

// Address returns the address that was actually connected.
func (c *Client) Address() string { return c.address }

func (c *Client) Kind() Kind { return c.kind }

type callResult struct {
	resp []byte
	err  error
}

// Call sends req and waits for the response. Calls are serialized. If ctx
// ends first, or the exchange fails, the client is closed: a connection with
// a half-finished exchange cannot be reused. Close may be called while a
// Call is in progress and makes it return ErrClientClosed.
func (c *Client) Call(ctx context.Context, req []byte) ([]byte, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	ch := make(chan callResult, 1)
	go func() {
		if err := c.conn.SendBytes(req); err != nil {
			ch <- callResult{err: &ProtocolError{Op: "write request", Err: err}}
			return
		}
		resp, err := c.conn.RecvBytes()
		if err != nil {
			ch <- callResult{err: &ProtocolError{Op: "read response", Err: err}}
			return
		}
		ch <- callResult{resp: resp}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			closedBefore := c.isClosed()
			_ = c.Close()
			if closedBefore {
				return nil, ErrClientClosed
			}
			return nil, r.err
		}
		return r.resp, nil
	case <-ctx.Done():
		_ = c.Close()
		<-ch
		return nil, ctx.Err()
	}
}

// Close closes the connection. It is safe to call more than once and from
// any goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}
