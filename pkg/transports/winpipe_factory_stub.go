//go:build !windows

package transports

import (
	"fmt"

	"github.com/multiscale/muscle3-sub001/pkg/transport"
)

func newWinPipeTransport() (transport.Transport, error) {
	return nil, fmt.Errorf("%w: winpipe is only available on windows", ErrUnknownKind)
}
