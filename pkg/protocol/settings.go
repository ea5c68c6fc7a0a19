package protocol

import "fmt"

// Settings is an overlay of model settings carried along with a message.
// Values are CBOR-encodable scalars, strings, lists or string-keyed maps;
// nested maps decode as map[string]any.
type Settings map[string]any

// EncodeSettings encodes s for the settings_overlay field. A nil overlay
// encodes as an empty map.
func EncodeSettings(s Settings) ([]byte, error) {
	if s == nil {
		s = Settings{}
	}
	return encMode.Marshal(map[string]any(s))
}

// DecodeSettings decodes a settings_overlay field. Empty input decodes to an
// empty overlay.
func DecodeSettings(b []byte) (Settings, error) {
	s := Settings{}
	if len(b) == 0 {
		return s, nil
	}
	if err := decMode.Unmarshal(b, (*map[string]any)(&s)); err != nil {
		return nil, fmt.Errorf("%w: settings: %v", ErrMalformed, err)
	}
	return s, nil
}
