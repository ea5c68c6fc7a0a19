// Package codec holds the serializers available for message data.
package codec

import "fmt"

const (
	ContentCBOR  = "application/cbor"
	ContentJSON  = "application/json"
	ContentProto = "application/x-protobuf"
	ContentRaw   = "application/octet-stream"
)

// Codec marshals typed values. Implementations must be deterministic so that
// equal values produce equal bytes on every instance.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs. It is not safe for concurrent
// Register calls; populate it before use.
type Registry struct{ byType map[string]Codec }

// NewRegistry returns a registry holding the JSON, Protobuf and CBOR codecs.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	r.Register(CBOR())
	return r
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns the codec for contentType, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// Lookup is Get with an error for unknown content types.
func (r *Registry) Lookup(contentType string) (Codec, error) {
	if c := r.byType[contentType]; c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("codec: no codec for %q", contentType)
}
