package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ClientPool keeps at most one Client per peer instance.
type ClientPool struct {
	set *Set

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

func NewClientPool(set *Set) *ClientPool {
	return &ClientPool{set: set, clients: make(map[string]*Client)}
}

// Get returns the client for peer, connecting to the best-ranked of its
// locations that answers when there is no live client yet.
func (p *ClientPool) Get(ctx context.Context, peer string, locations []string) (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClientClosed
	}
	if c := p.clients[peer]; c != nil && !c.isClosed() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	ranked := p.set.Rank(locations)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("peer %s: %w: %v", peer, ErrNoTransport, locations)
	}
	var errs []error
	var c *Client
	for _, loc := range ranked {
		var err error
		if c, err = Connect(ctx, p.set, loc); err == nil {
			break
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if c == nil {
		return nil, fmt.Errorf("peer %s: %w", peer, errors.Join(errs...))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = c.Close()
		return nil, ErrClientClosed
	}
	if existing := p.clients[peer]; existing != nil && !existing.isClosed() {
		// lost a concurrent dial race
		_ = c.Close()
		return existing, nil
	}
	p.clients[peer] = c
	zap.L().Debug("peer client added", zap.String("peer", peer), zap.String("location", c.Location()))
	return c, nil
}

// Drop closes and forgets the client for peer, so that the next Get
// reconnects.
func (p *ClientPool) Drop(peer string) {
	p.mu.Lock()
	c := p.clients[peer]
	delete(p.clients, peer)
	p.mu.Unlock()
	if c != nil {
		_ = c.Close()
		zap.L().Debug("peer client dropped", zap.String("peer", peer))
	}
}

// Peers lists peers with a live client.
func (p *ClientPool) Peers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.clients))
	for id := range p.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close closes every client. Later Gets fail with ErrClientClosed.
func (p *ClientPool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.closed = true
	p.mu.Unlock()
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
