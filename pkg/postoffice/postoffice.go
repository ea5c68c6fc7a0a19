// Package postoffice holds the outboxes of one instance and implements the
// two-phase retrieve used by transport servers: TryRetrieve either returns a
// message at once or a Pending wait that is completed after it becomes ready.
package postoffice

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/outbox"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

var (
	// ErrUnknownPending is returned for a wait that was already completed or
	// abandoned, or that belongs to another post office.
	ErrUnknownPending = errors.New("postoffice: unknown or finished pending retrieve")
	// ErrNotReady is returned by CompleteRetrieve before the wait has fired.
	ErrNotReady = errors.New("postoffice: pending retrieve is not ready")
	// ErrReceiverBusy is returned by TryRetrieve while another wait for the
	// same receiver is outstanding.
	ErrReceiverBusy = errors.New("postoffice: receiver already has a pending retrieve")
)

// Pending is an outstanding deferred retrieve.
type Pending struct {
	receiver ref.Reference
	box      *outbox.Outbox
	signal   *outbox.Signal
}

// Receiver returns the receiver this wait is for.
func (p *Pending) Receiver() ref.Reference { return p.receiver }

// Ready is closed once a message is available for the receiver.
func (p *Pending) Ready() <-chan struct{} { return p.signal.Done() }

// PostOffice maps receivers to outboxes. Deposits for different receivers do
// not contend beyond the short map lookup.
type PostOffice struct {
	mu       sync.Mutex
	outboxes map[ref.Reference]*outbox.Outbox
	waits    map[ref.Reference]*Pending
	// closed and replaced after every retrieve
	retrieved chan struct{}
	// closed and replaced whenever a wait is completed or abandoned
	released chan struct{}
}

func New() *PostOffice {
	return &PostOffice{
		outboxes:  make(map[ref.Reference]*outbox.Outbox),
		waits:     make(map[ref.Reference]*Pending),
		retrieved: make(chan struct{}),
		released:  make(chan struct{}),
	}
}

// outboxLocked returns the outbox for receiver, creating it if needed.
// po.mu must be held.
func (po *PostOffice) outboxLocked(receiver ref.Reference) *outbox.Outbox {
	box, ok := po.outboxes[receiver]
	if !ok {
		box = outbox.New()
		po.outboxes[receiver] = box
	}
	return box
}

// Deposit queues msg for receiver.
func (po *PostOffice) Deposit(receiver ref.Reference, msg []byte) {
	po.mu.Lock()
	box := po.outboxLocked(receiver)
	po.mu.Unlock()
	box.Deposit(msg)
	zap.L().Debug("message deposited", zap.String("receiver", receiver.String()), zap.Int("bytes", len(msg)))
}

// TryRetrieve returns the next message for receiver if there is one.
// Otherwise it registers and returns a Pending whose Ready channel closes once
// a message arrives; the caller must then call CompleteRetrieve or Abandon.
func (po *PostOffice) TryRetrieve(receiver ref.Reference) ([]byte, *Pending, error) {
	po.mu.Lock()
	defer po.mu.Unlock()
	return po.tryRetrieveLocked(receiver)
}

// TryRetrieveWithin is TryRetrieve, except that a receiver whose previous
// wait is still outstanding gets up to grace for that wait to be completed
// or abandoned before ErrReceiverBusy is returned. A client that drops a
// call and reconnects at once can otherwise be seen before the server has
// noticed the old connection closing.
func (po *PostOffice) TryRetrieveWithin(receiver ref.Reference, grace time.Duration) ([]byte, *Pending, error) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for {
		po.mu.Lock()
		msg, p, err := po.tryRetrieveLocked(receiver)
		released := po.released
		po.mu.Unlock()
		if !errors.Is(err, ErrReceiverBusy) {
			return msg, p, err
		}
		select {
		case <-released:
		case <-timer.C:
			return nil, nil, err
		}
	}
}

func (po *PostOffice) tryRetrieveLocked(receiver ref.Reference) ([]byte, *Pending, error) {
	if _, busy := po.waits[receiver]; busy {
		return nil, nil, ErrReceiverBusy
	}
	box := po.outboxLocked(receiver)
	if msg, ok := box.Retrieve(); ok {
		po.broadcastLocked()
		zap.L().Debug("message retrieved", zap.String("receiver", receiver.String()))
		return msg, nil, nil
	}
	p := &Pending{receiver: receiver, box: box, signal: outbox.NewSignal()}
	po.waits[receiver] = p
	box.SetNotification(p.signal)
	zap.L().Debug("retrieve deferred", zap.String("receiver", receiver.String()))
	return nil, p, nil
}

// CompleteRetrieve returns the message p was waiting for. It may be called
// once per Pending, after Ready has been closed.
func (po *PostOffice) CompleteRetrieve(p *Pending) ([]byte, error) {
	po.mu.Lock()
	defer po.mu.Unlock()
	if p == nil || po.waits[p.receiver] != p {
		return nil, ErrUnknownPending
	}
	if !p.signal.Fired() {
		return nil, ErrNotReady
	}
	delete(po.waits, p.receiver)
	po.releaseLocked()
	msg, ok := p.box.Retrieve()
	if !ok {
		// Only the holder of the wait retrieves for this receiver, so a fired
		// signal always has a message behind it.
		return nil, ErrNotReady
	}
	po.broadcastLocked()
	zap.L().Debug("deferred retrieve completed", zap.String("receiver", p.receiver.String()))
	return msg, nil
}

// Abandon cancels p without consuming a message. Any message that arrived in
// the meantime stays queued for the next retrieve.
func (po *PostOffice) Abandon(p *Pending) error {
	po.mu.Lock()
	defer po.mu.Unlock()
	if p == nil || po.waits[p.receiver] != p {
		return ErrUnknownPending
	}
	delete(po.waits, p.receiver)
	po.releaseLocked()
	p.box.ClearNotification()
	zap.L().Debug("deferred retrieve abandoned", zap.String("receiver", p.receiver.String()))
	return nil
}

func (po *PostOffice) releaseLocked() {
	close(po.released)
	po.released = make(chan struct{})
}

func (po *PostOffice) broadcastLocked() {
	close(po.retrieved)
	po.retrieved = make(chan struct{})
}

// WaitForReceivers blocks until every outbox is empty at the same time. Any
// outbox created while waiting is included in the next check. It returns
// ctx.Err() if ctx ends first.
func (po *PostOffice) WaitForReceivers(ctx context.Context) error {
	for {
		po.mu.Lock()
		empty := true
		for _, box := range po.outboxes {
			if !box.IsEmpty() {
				empty = false
				break
			}
		}
		next := po.retrieved
		po.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-next:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats is a snapshot of post office occupancy.
type Stats struct {
	Outboxes int
	Queued   int
	Pending  int
}

func (po *PostOffice) Stats() Stats {
	po.mu.Lock()
	defer po.mu.Unlock()
	s := Stats{Outboxes: len(po.outboxes), Pending: len(po.waits)}
	for _, box := range po.outboxes {
		s.Queued += box.Len()
	}
	return s
}
