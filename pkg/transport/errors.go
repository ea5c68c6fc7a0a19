package transport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClientClosed is returned by Call on a closed client.
	ErrClientClosed = errors.New("transport: client closed")
	// ErrNoTransport is returned when no enabled transport matches a location.
	ErrNoTransport = errors.New("transport: no transport for location")
)

// ConnectError reports that none of the addresses of a location could be
// reached. Errs holds one cause per address tried.
type ConnectError struct {
	Location string
	Errs     []error
}

func (e *ConnectError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("could not connect to %s: %s", e.Location, strings.Join(msgs, "; "))
}

func (e *ConnectError) Unwrap() []error { return e.Errs }

// ProtocolError ends one connection or call: a bad frame, a connection
// dropped mid-exchange, or an undecodable request.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return "transport: " + e.Op + ": " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }
