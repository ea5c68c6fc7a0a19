package ref

import (
	"errors"
	"fmt"
	"strings"
)

// Conduit is a static model-level wiring from a sending port to a receiving
// port. Each side is kernel.port or kernel.port[slot...].
type Conduit struct {
	Sender   Reference
	Receiver Reference
}

// NewConduit parses and validates both sides of a conduit.
func NewConduit(sender, receiver string) (Conduit, error) {
	s, err := ParseReference(sender)
	if err != nil {
		return Conduit{}, err
	}
	r, err := ParseReference(receiver)
	if err != nil {
		return Conduit{}, err
	}
	c := Conduit{Sender: s, Receiver: r}
	if err := c.Validate(); err != nil {
		return Conduit{}, err
	}
	return c, nil
}

// ParseConduit parses the "sender -> receiver" form used in model files.
func ParseConduit(s string) (Conduit, error) {
	from, to, ok := strings.Cut(s, "->")
	if !ok {
		return Conduit{}, &ConfigError{Subject: "conduit", Value: s, Err: errors.New("expected 'sender -> receiver'")}
	}
	return NewConduit(strings.TrimSpace(from), strings.TrimSpace(to))
}

// Validate checks that both sides name at least a kernel and a port, and that
// indices only appear as a trailing slot.
func (c Conduit) Validate() error {
	for _, side := range []Reference{c.Sender, c.Receiver} {
		if err := validateSide(side); err != nil {
			return &ConfigError{Subject: "conduit", Value: c.String(), Err: err}
		}
	}
	return nil
}

func validateSide(r Reference) error {
	base, _ := r.SplitTrailingIndices()
	parts := base.Parts()
	if len(parts) < 2 {
		return fmt.Errorf("%q must have a kernel and a port", r)
	}
	for _, p := range parts {
		if p.IsIndex() {
			return fmt.Errorf("%q has an index before the port name", r)
		}
	}
	return nil
}

func (c Conduit) String() string { return c.Sender.String() + " -> " + c.Receiver.String() }

// SendingKernel returns the kernel part of the sender.
func (c Conduit) SendingKernel() Reference { k, _, _ := split(c.Sender); return k }

// SendingPort returns the port name of the sender.
func (c Conduit) SendingPort() Identifier { _, p, _ := split(c.Sender); return p }

// SendingSlot returns the slot written on the sender side, if any.
func (c Conduit) SendingSlot() []int { _, _, s := split(c.Sender); return s }

// ReceivingKernel returns the kernel part of the receiver.
func (c Conduit) ReceivingKernel() Reference { k, _, _ := split(c.Receiver); return k }

// ReceivingPort returns the port name of the receiver.
func (c Conduit) ReceivingPort() Identifier { _, p, _ := split(c.Receiver); return p }

// ReceivingSlot returns the slot written on the receiver side, if any.
func (c Conduit) ReceivingSlot() []int { _, _, s := split(c.Receiver); return s }

// split breaks a validated conduit side into kernel, port and slot.
func split(r Reference) (Reference, Identifier, []int) {
	base, slot := r.SplitTrailingIndices()
	last, ok := base.Last()
	if !ok {
		return Reference{}, "", slot
	}
	return base.Prefix(base.Len() - 1), last.Identifier(), slot
}
