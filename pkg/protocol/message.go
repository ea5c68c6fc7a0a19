// Package protocol defines what travels over a post office connection: the
// pull request naming a receiver and the encoded message record returned for
// it.
package protocol

import (
	"errors"
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"

	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

// ErrMalformed is returned when a request or message record cannot be decoded.
var ErrMalformed = errors.New("protocol: malformed record")

// Message is one timestamped message as it sits in an outbox. PortLength and
// NextTimestamp are optional; nil means absent.
type Message struct {
	Sender          ref.Reference
	Receiver        ref.Reference
	PortLength      *int
	Timestamp       float64
	NextTimestamp   *float64
	SettingsOverlay []byte
	MessageNumber   int
	SavedUntil      float64
	Data            []byte
}

// Record keys. Every key is always present; absent optionals are nil.
const (
	keySender          = "sender"
	keyReceiver        = "receiver"
	keyPortLength      = "port_length"
	keyTimestamp       = "timestamp"
	keyNextTimestamp   = "next_timestamp"
	keySettingsOverlay = "settings_overlay"
	keyMessageNumber   = "message_number"
	keySavedUntil      = "saved_until"
	keyData            = "data"
)

var recordKeys = []string{
	keySender, keyReceiver, keyPortLength, keyTimestamp, keyNextTimestamp,
	keySettingsOverlay, keyMessageNumber, keySavedUntil, keyData,
}

type wireMessage struct {
	Sender          string   `cbor:"sender"`
	Receiver        string   `cbor:"receiver"`
	PortLength      *int     `cbor:"port_length"`
	Timestamp       float64  `cbor:"timestamp"`
	NextTimestamp   *float64 `cbor:"next_timestamp"`
	SettingsOverlay []byte   `cbor:"settings_overlay"`
	MessageNumber   int      `cbor:"message_number"`
	SavedUntil      float64  `cbor:"saved_until"`
	Data            []byte   `cbor:"data"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}).DecMode(); err != nil {
		panic(err)
	}
}

// Encode serializes m as a CBOR map with canonical key order, so equal
// messages always encode to equal bytes.
func (m *Message) Encode() ([]byte, error) {
	w := wireMessage{
		Sender:          m.Sender.String(),
		Receiver:        m.Receiver.String(),
		PortLength:      m.PortLength,
		Timestamp:       m.Timestamp,
		NextTimestamp:   m.NextTimestamp,
		SettingsOverlay: m.SettingsOverlay,
		MessageNumber:   m.MessageNumber,
		SavedUntil:      m.SavedUntil,
		Data:            m.Data,
	}
	return encMode.Marshal(w)
}

// DecodeMessage parses a record produced by Encode. A record that lacks any
// of the nine keys is malformed.
func DecodeMessage(b []byte) (*Message, error) {
	var raw map[string]cbor.RawMessage
	if err := decMode.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, k := range recordKeys {
		if _, ok := raw[k]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrMalformed, k)
		}
	}
	var w wireMessage
	if err := decMode.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sender, err := parseOptionalRef(w.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrMalformed, err)
	}
	receiver, err := parseOptionalRef(w.Receiver)
	if err != nil {
		return nil, fmt.Errorf("%w: receiver: %v", ErrMalformed, err)
	}
	return &Message{
		Sender:          sender,
		Receiver:        receiver,
		PortLength:      w.PortLength,
		Timestamp:       w.Timestamp,
		NextTimestamp:   w.NextTimestamp,
		SettingsOverlay: w.SettingsOverlay,
		MessageNumber:   w.MessageNumber,
		SavedUntil:      w.SavedUntil,
		Data:            w.Data,
	}, nil
}

func parseOptionalRef(s string) (ref.Reference, error) {
	if s == "" {
		return ref.Reference{}, nil
	}
	return ref.ParseReference(s)
}
