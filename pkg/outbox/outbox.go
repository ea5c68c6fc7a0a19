// Package outbox implements the per-receiver FIFO of encoded messages that
// have been sent but not yet pulled.
package outbox

import "sync"

// Signal is a one-shot notification. Firing it closes a channel, so any
// number of goroutines may wait on Done.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Fire triggers the signal. Only the first call has an effect.
func (s *Signal) Fire() { s.once.Do(func() { close(s.ch) }) }

// Done returns a channel that is closed once the signal has fired.
func (s *Signal) Done() <-chan struct{} { return s.ch }

// Fired reports whether Fire has been called.
func (s *Signal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Outbox is a FIFO of messages for one receiver. It is safe for concurrent
// use; Deposit never blocks on anything but the outbox's own lock.
type Outbox struct {
	mu     sync.Mutex
	queue  [][]byte
	head   int
	notify *Signal
}

func New() *Outbox { return &Outbox{} }

// Deposit appends msg. If the outbox was empty and a notification is
// registered, the notification is fired and cleared.
func (o *Outbox) Deposit(msg []byte) {
	o.mu.Lock()
	wasEmpty := o.lenLocked() == 0
	o.queue = append(o.queue, msg)
	var fire *Signal
	if wasEmpty && o.notify != nil {
		fire, o.notify = o.notify, nil
	}
	o.mu.Unlock()
	if fire != nil {
		fire.Fire()
	}
}

// Retrieve removes and returns the oldest message. ok is false when the
// outbox is empty.
func (o *Outbox) Retrieve() (msg []byte, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lenLocked() == 0 {
		return nil, false
	}
	msg = o.queue[o.head]
	o.queue[o.head] = nil
	o.head++
	if o.head == len(o.queue) {
		o.queue, o.head = o.queue[:0], 0
	} else if o.head > 64 && o.head*2 > len(o.queue) {
		n := copy(o.queue, o.queue[o.head:])
		clear(o.queue[n:])
		o.queue, o.head = o.queue[:n], 0
	}
	return msg, true
}

func (o *Outbox) IsEmpty() bool { return o.Len() == 0 }

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lenLocked()
}

func (o *Outbox) lenLocked() int { return len(o.queue) - o.head }

// SetNotification registers s to be fired by the next deposit into an empty
// outbox. If the outbox already holds a message, s fires immediately and is
// not retained; this closes the gap between an emptiness check and the
// registration.
func (o *Outbox) SetNotification(s *Signal) {
	o.mu.Lock()
	if o.lenLocked() > 0 {
		o.mu.Unlock()
		s.Fire()
		return
	}
	o.notify = s
	o.mu.Unlock()
}

// ClearNotification unregisters and returns the current notification, which
// is nil when none is set or it has already fired.
func (o *Outbox) ClearNotification() *Signal {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.notify
	o.notify = nil
	return s
}
