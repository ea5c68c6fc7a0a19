// Package communicator sends and receives messages on named ports. Sending
// deposits into the local post office; receiving pulls from the peer
// instance's post office over a transport.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/peers"
	"github.com/multiscale/muscle3-sub001/pkg/postoffice"
	"github.com/multiscale/muscle3-sub001/pkg/protocol"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

var (
	// ErrNotConnected is returned by Receive on a port without a conduit.
	ErrNotConnected = errors.New("communicator: port is not connected")
	// ErrWrongReceiver is returned when a peer answers with a message
	// addressed to someone else.
	ErrWrongReceiver = errors.New("communicator: message is for another receiver")
)

// Message is what a caller sends or receives. Sender, MessageNumber and
// PortLength are filled in on receive and ignored on send.
type Message struct {
	Timestamp     float64
	NextTimestamp *float64
	Data          []byte
	Settings      protocol.Settings
	SavedUntil    float64

	Sender        ref.Reference
	MessageNumber int
	PortLength    *int
}

// Communicator is safe for concurrent use.
type Communicator struct {
	peers *peers.Manager
	po    *postoffice.PostOffice
	pool  *transport.ClientPool

	mu          sync.Mutex
	portLengths map[ref.Identifier]int
	numbers     map[ref.Reference]int
}

func New(pm *peers.Manager, po *postoffice.PostOffice, pool *transport.ClientPool) *Communicator {
	return &Communicator{
		peers:       pm,
		po:          po,
		pool:        pool,
		portLengths: make(map[ref.Identifier]int),
		numbers:     make(map[ref.Reference]int),
	}
}

// SetPortLength declares the slot count of a vector port whose length is not
// implied by the peer's instance set. It is sent along with every message on
// that port.
func (c *Communicator) SetPortLength(port ref.Identifier, n int) {
	c.mu.Lock()
	c.portLengths[port] = n
	c.mu.Unlock()
}

func (c *Communicator) own(port ref.Identifier, slot []int) ref.Endpoint {
	return ref.Endpoint{Kernel: c.peers.Kernel(), Index: c.peers.Index(), Port: port, Slot: slot}
}

// Send deposits msg for every peer endpoint of (port, slot). Sending on an
// unconnected port does nothing.
func (c *Communicator) Send(port ref.Identifier, msg Message, slot ...int) error {
	if !c.peers.IsConnected(port) {
		zap.L().Debug("send on unconnected port dropped", zap.String("port", string(port)))
		return nil
	}
	eps, err := c.peers.PeerEndpoints(port, slot)
	if err != nil {
		return err
	}
	overlay, err := protocol.EncodeSettings(msg.Settings)
	if err != nil {
		return err
	}
	sender := c.own(port, slot).Ref()

	c.mu.Lock()
	num := c.numbers[sender]
	c.numbers[sender] = num + 1
	var portLength *int
	if n, ok := c.portLengths[port]; ok {
		portLength = &n
	}
	c.mu.Unlock()

	for _, ep := range eps {
		receiver := ep.Ref()
		rec := protocol.Message{
			Sender:          sender,
			Receiver:        receiver,
			PortLength:      portLength,
			Timestamp:       msg.Timestamp,
			NextTimestamp:   msg.NextTimestamp,
			SettingsOverlay: overlay,
			MessageNumber:   num,
			SavedUntil:      msg.SavedUntil,
			Data:            msg.Data,
		}
		b, err := rec.Encode()
		if err != nil {
			return fmt.Errorf("encode message for %s: %w", receiver, err)
		}
		c.po.Deposit(receiver, b)
	}
	return nil
}

// Receive pulls the next message for (port, slot) from the single peer
// instance wired to it, blocking until one is available or ctx ends.
func (c *Communicator) Receive(ctx context.Context, port ref.Identifier, slot ...int) (*Message, error) {
	if !c.peers.IsConnected(port) {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, port)
	}
	eps, err := c.peers.PeerEndpoints(port, slot)
	if err != nil {
		return nil, err
	}
	if len(eps) != 1 {
		return nil, fmt.Errorf("port %s: receiving needs exactly one peer, have %d", port, len(eps))
	}
	instance := eps[0].Instance()
	locs, err := c.peers.PeerLocations(instance)
	if err != nil {
		return nil, err
	}
	client, err := c.pool.Get(ctx, instance.String(), locs)
	if err != nil {
		return nil, err
	}
	own := c.own(port, slot).Ref()
	resp, err := client.Call(ctx, protocol.EncodeRequest(own))
	if err != nil {
		c.pool.Drop(instance.String())
		return nil, fmt.Errorf("receive %s from %s: %w", own, instance, err)
	}
	rec, err := protocol.DecodeMessage(resp)
	if err != nil {
		c.pool.Drop(instance.String())
		return nil, err
	}
	if rec.Receiver != own {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongReceiver, rec.Receiver, own)
	}
	settings, err := protocol.DecodeSettings(rec.SettingsOverlay)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("message received",
		zap.String("receiver", own.String()),
		zap.String("sender", rec.Sender.String()),
		zap.Int("number", rec.MessageNumber))
	return &Message{
		Timestamp:     rec.Timestamp,
		NextTimestamp: rec.NextTimestamp,
		Data:          rec.Data,
		Settings:      settings,
		SavedUntil:    rec.SavedUntil,
		Sender:        rec.Sender,
		MessageNumber: rec.MessageNumber,
		PortLength:    rec.PortLength,
	}, nil
}

// Shutdown waits until every message sent has been pulled, then closes
// outgoing connections.
func (c *Communicator) Shutdown(ctx context.Context) error {
	if err := c.po.WaitForReceivers(ctx); err != nil {
		return err
	}
	return c.pool.Close()
}
