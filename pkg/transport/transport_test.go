package transport_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
	"github.com/multiscale/muscle3-sub001/pkg/transport/mem"
	"github.com/multiscale/muscle3-sub001/pkg/transport/tcp"
)

// echo answers every request immediately with the request itself.
type echo struct{}

func (echo) HandleRequest(req []byte) ([]byte, transport.Waiter, error) { return req, nil, nil }
func (echo) GetResponse(transport.Waiter) ([]byte, error)               { return nil, errors.New("unused") }
func (echo) Abandon(transport.Waiter) error                             { return nil }

func TestParseLocation(t *testing.T) {
	loc, err := transport.ParseLocation("tcp:192.0.2.1:10000,[2001:db8::1]:10000")
	require.NoError(t, err)
	assert.Equal(t, "tcp", loc.Scheme)
	assert.Equal(t, []string{"192.0.2.1:10000", "[2001:db8::1]:10000"}, loc.Addresses)
	assert.Equal(t, "tcp:192.0.2.1:10000,[2001:db8::1]:10000", loc.String())

	for _, bad := range []string{"", "tcp", ":1.2.3.4:5", "tcp:", "tcp: , "} {
		_, err := transport.ParseLocation(bad)
		assert.Error(t, err, bad)
	}
}

func TestCanConnect(t *testing.T) {
	tr := tcp.New()
	assert.True(t, transport.CanConnect(tr, "tcp:127.0.0.1:1"))
	assert.False(t, transport.CanConnect(tr, "quic:127.0.0.1:1"))
	assert.False(t, transport.CanConnect(tr, "tcpx:127.0.0.1:1"))
}

func TestSetRank(t *testing.T) {
	set := transport.NewSet(tcp.New(), mem.New())
	got := set.Rank([]string{"tcp:a:1", "quic:b:2", "mem:c", "tcp:d:4"})
	assert.Equal(t, []string{"mem:c", "tcp:a:1", "tcp:d:4"}, got)

	_, _, err := set.ForLocation("quic:b:2")
	assert.ErrorIs(t, err, transport.ErrNoTransport)
}

func TestServerLocationExpandsWildcard(t *testing.T) {
	srv, err := transport.NewServer(context.Background(), tcp.New(), nil, echo{})
	require.NoError(t, err)
	defer srv.Close()

	loc, err := transport.ParseLocation(srv.Location())
	require.NoError(t, err)
	require.NotEmpty(t, loc.Addresses)
	for _, a := range loc.Addresses {
		host, _, err := net.SplitHostPort(a)
		require.NoError(t, err)
		assert.False(t, net.ParseIP(host).IsUnspecified(), a)
	}
}

func TestConnectTriesEveryAddress(t *testing.T) {
	srv, err := transport.NewServer(context.Background(), tcp.New(), []string{"127.0.0.1:0"}, echo{})
	require.NoError(t, err)
	defer srv.Close()
	loc, err := transport.ParseLocation(srv.Location())
	require.NoError(t, err)

	dead := closedPort(t)
	location := "tcp:" + dead + "," + loc.Addresses[0]
	c, err := transport.Connect(context.Background(), transport.NewSet(tcp.New()), location)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, loc.Addresses[0], c.Address())

	resp, err := c.Call(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(resp))
}

func TestConnectErrorNamesLocation(t *testing.T) {
	location := "tcp:" + closedPort(t) + "," + closedPort(t)
	_, err := transport.Connect(context.Background(), transport.NewSet(tcp.New()), location)
	var ce *transport.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, location, ce.Location)
	assert.Len(t, ce.Errs, 2)
	assert.Contains(t, err.Error(), location)
}

func TestPoolReusesClient(t *testing.T) {
	tr := mem.New()
	srv, err := transport.NewServer(context.Background(), tr, nil, echo{})
	require.NoError(t, err)
	defer srv.Close()
	pool := transport.NewClientPool(transport.NewSet(tr))
	defer pool.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	clients := make([]*transport.Client, 8)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := pool.Get(ctx, "peer[1]", []string{"tcp:127.0.0.1:1", srv.Location()})
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()
	for _, c := range clients[1:] {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, []string{"peer[1]"}, pool.Peers())

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte{byte('a' + i)}
			resp, err := clients[0].Call(ctx, msg)
			assert.NoError(t, err)
			assert.Equal(t, msg, resp)
		}(i)
	}
	wg.Wait()

	pool.Drop("peer[1]")
	assert.Empty(t, pool.Peers())
	_, err = clients[0].Call(ctx, []byte("x"))
	assert.ErrorIs(t, err, transport.ErrClientClosed)

	c, err := pool.Get(ctx, "peer[1]", []string{srv.Location()})
	require.NoError(t, err)
	assert.NotSame(t, clients[0], c)

	require.NoError(t, pool.Close())
	_, err = pool.Get(ctx, "peer[1]", []string{srv.Location()})
	assert.ErrorIs(t, err, transport.ErrClientClosed)
}

func TestPoolNoUsableLocation(t *testing.T) {
	pool := transport.NewClientPool(transport.NewSet(tcp.New()))
	_, err := pool.Get(context.Background(), "p", []string{"quic:1.2.3.4:5"})
	assert.ErrorIs(t, err, transport.ErrNoTransport)
}

func TestCallCancelClosesClient(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	tr := mem.New()
	srv, err := transport.NewServer(context.Background(), tr, nil, blocking{block})
	require.NoError(t, err)
	defer srv.Close()

	c, err := transport.Connect(context.Background(), transport.NewSet(tr), srv.Location())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = c.Call(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, transport.ErrClientClosed)
}

// blocking defers every request until its channel is closed.
type blocking struct{ ch chan struct{} }

type chanWaiter chan struct{}

func (w chanWaiter) Ready() <-chan struct{} { return w }

func (b blocking) HandleRequest(req []byte) ([]byte, transport.Waiter, error) {
	return nil, chanWaiter(b.ch), nil
}
func (b blocking) GetResponse(transport.Waiter) ([]byte, error) { return []byte("late"), nil }
func (b blocking) Abandon(transport.Waiter) error               { return nil }

func closedPort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
