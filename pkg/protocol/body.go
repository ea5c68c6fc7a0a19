package protocol

import (
	"fmt"

	"github.com/multiscale/muscle3-sub001/pkg/protocol/codec"
)

// Format selects how a message's data field was serialized. It is carried as
// the first byte of the data field.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCBOR
	FormatProto
	// FormatRaw carries bytes as they are.
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return codec.ContentJSON
	case FormatCBOR:
		return codec.ContentCBOR
	case FormatProto:
		return codec.ContentProto
	case FormatRaw:
		return codec.ContentRaw
	default:
		return "unknown"
	}
}

// ParseFormat maps a short name (json, cbor, proto, raw) to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "cbor":
		return FormatCBOR, nil
	case "proto", "protobuf":
		return FormatProto, nil
	case "raw", "bytes":
		return FormatRaw, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown data format %q", s)
	}
}

// EncodeData serializes v with the codec for f and prefixes the result with
// the format byte. FormatRaw expects v to be a []byte.
func EncodeData(r *codec.Registry, f Format, v any) ([]byte, error) {
	var body []byte
	if f == FormatRaw {
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("raw data must be []byte, got %T", v)
		}
		body = b
	} else {
		c, err := r.Lookup(f.String())
		if err != nil {
			return nil, err
		}
		if body, err = c.Marshal(v); err != nil {
			return nil, err
		}
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(f)
	copy(out[1:], body)
	return out, nil
}

// DecodeData decodes data produced by EncodeData into v and reports the
// format it was written in. For FormatRaw, v must be a *[]byte.
func DecodeData(r *codec.Registry, data []byte, v any) (Format, error) {
	if len(data) == 0 {
		return FormatUnknown, fmt.Errorf("%w: empty data", ErrMalformed)
	}
	f := Format(data[0])
	if f == FormatRaw {
		p, ok := v.(*[]byte)
		if !ok {
			return f, fmt.Errorf("raw data needs a *[]byte target, got %T", v)
		}
		*p = append([]byte(nil), data[1:]...)
		return f, nil
	}
	if f == FormatUnknown || f > FormatRaw {
		return f, fmt.Errorf("%w: unknown data format %d", ErrMalformed, f)
	}
	c, err := r.Lookup(f.String())
	if err != nil {
		return f, err
	}
	return f, c.Unmarshal(data[1:], v)
}
