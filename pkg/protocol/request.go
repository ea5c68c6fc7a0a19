package protocol

import (
	"fmt"
	"unicode/utf8"

	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

// EncodeRequest builds a pull request for receiver: the UTF-8 text of the
// reference, nothing else.
func EncodeRequest(receiver ref.Reference) []byte { return []byte(receiver.String()) }

// DecodeRequest parses a pull request.
func DecodeRequest(b []byte) (ref.Reference, error) {
	if !utf8.Valid(b) {
		return ref.Reference{}, fmt.Errorf("%w: request is not UTF-8", ErrMalformed)
	}
	r, err := ref.ParseReference(string(b))
	if err != nil {
		return ref.Reference{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}
