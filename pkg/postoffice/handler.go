package postoffice

import (
	"fmt"
	"time"

	"github.com/multiscale/muscle3-sub001/pkg/protocol"
	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

// Handler serves pull requests from a transport.Server out of a PostOffice.
// A request is the receiver reference; the response is the oldest message
// deposited for it.
type Handler struct {
	po        *PostOffice
	busyGrace time.Duration
}

// DefaultBusyGrace is how long a request for a receiver that still has a
// wait outstanding on another connection is held before it is refused.
const DefaultBusyGrace = time.Second

func NewHandler(po *PostOffice) *Handler { return &Handler{po: po, busyGrace: DefaultBusyGrace} }

// SetBusyGrace changes the grace period; zero refuses busy receivers at once.
func (h *Handler) SetBusyGrace(d time.Duration) { h.busyGrace = d }

func (h *Handler) HandleRequest(req []byte) ([]byte, transport.Waiter, error) {
	receiver, err := protocol.DecodeRequest(req)
	if err != nil {
		return nil, nil, err
	}
	msg, p, err := h.po.TryRetrieveWithin(receiver, h.busyGrace)
	if err != nil {
		return nil, nil, err
	}
	if p != nil {
		return nil, p, nil
	}
	return msg, nil, nil
}

func (h *Handler) GetResponse(w transport.Waiter) ([]byte, error) {
	p, ok := w.(*Pending)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownPending, w)
	}
	return h.po.CompleteRetrieve(p)
}

func (h *Handler) Abandon(w transport.Waiter) error {
	p, ok := w.(*Pending)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownPending, w)
	}
	return h.po.Abandon(p)
}
