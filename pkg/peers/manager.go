// Package peers resolves which peer instances, ports and slots a local port
// talks to, given the model's conduits and the shape of each peer kernel.
package peers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

var (
	ErrNotFound          = errors.New("no registered peer")
	ErrMultiplyConnected = errors.New("receiving port is connected by more than one conduit")
	ErrIndexTooShort     = errors.New("index vector is shorter than the peer dimensionality")
	ErrIndexOutOfRange   = errors.New("index is outside the peer dimensions")
)

// Dims maps a kernel to the shape of its instance set. A non-replicated
// kernel has an empty shape.
type Dims map[ref.Reference][]int

// Locations maps a peer instance to the network locations of its post office.
type Locations map[ref.Reference][]string

// Manager answers peer questions for one instance. It is read-only after
// construction and safe for concurrent use.
type Manager struct {
	kernel ref.Reference
	index  []int
	// own kernel.port -> peer kernel.port[slot] references
	peers     map[ref.Reference][]ref.Reference
	dims      Dims
	locations Locations
}

// NewManager builds the resolver for instance kernel[index...]. It fails with a
// *ref.ConfigError when a receiving port is the target of more than one
// distinct conduit.
func NewManager(kernel ref.Reference, index []int, conduits []ref.Conduit, dims Dims, locations Locations) (*Manager, error) {
	m := &Manager{
		kernel:    kernel,
		index:     cloneInts(index),
		peers:     make(map[ref.Reference][]ref.Reference),
		dims:      make(Dims, len(dims)),
		locations: make(Locations, len(locations)),
	}
	for k, v := range dims {
		m.dims[k] = cloneInts(v)
	}
	for k, v := range locations {
		m.locations[k] = append([]string(nil), v...)
	}

	conduits, err := UniqueConduits(conduits)
	if err != nil {
		return nil, err
	}
	for _, c := range conduits {
		if c.SendingKernel() == kernel {
			own := kernel.AppendName(c.SendingPort())
			m.peers[own] = append(m.peers[own], c.Receiver)
		}
		if c.ReceivingKernel() == kernel {
			recvPort := kernel.AppendName(c.ReceivingPort())
			m.peers[recvPort] = append(m.peers[recvPort], c.Sender)
		}
	}
	zap.L().Debug("peer manager built",
		zap.String("kernel", kernel.String()),
		zap.Ints("index", m.index),
		zap.Int("ports", len(m.peers)))
	return m, nil
}

// UniqueConduits drops repeated identical conduits, keeping the first
// occurrence, and returns a *ref.ConfigError wrapping ErrMultiplyConnected
// when a receiving port is the target of two distinct conduits. Any slot on
// the receiving side is ignored for this check.
func UniqueConduits(conduits []ref.Conduit) ([]ref.Conduit, error) {
	receivers := make(map[ref.Reference]ref.Conduit, len(conduits))
	out := make([]ref.Conduit, 0, len(conduits))
	for _, c := range conduits {
		recvPort := c.ReceivingKernel().AppendName(c.ReceivingPort())
		if prev, ok := receivers[recvPort]; ok {
			if prev != c {
				return nil, &ref.ConfigError{Subject: "port", Value: recvPort.String(),
					Err: fmt.Errorf("%w: %q and %q", ErrMultiplyConnected, prev, c)}
			}
			continue
		}
		receivers[recvPort] = c
		out = append(out, c)
	}
	return out, nil
}

// Kernel returns the kernel this manager resolves for.
func (m *Manager) Kernel() ref.Reference { return m.kernel }

// Index returns a copy of this instance's index.
func (m *Manager) Index() []int { return cloneInts(m.index) }

// Instance returns kernel[index...].
func (m *Manager) Instance() ref.Reference { return m.kernel.AppendIndex(m.index...) }

// IsConnected reports whether port is wired by any conduit.
func (m *Manager) IsConnected(port ref.Identifier) bool {
	_, ok := m.peers[m.kernel.AppendName(port)]
	return ok
}

// PeerPorts returns the peer port references wired to port, as written in the
// conduits.
func (m *Manager) PeerPorts(port ref.Identifier) ([]ref.Reference, error) {
	own := m.kernel.AppendName(port)
	ps, ok := m.peers[own]
	if !ok {
		return nil, fmt.Errorf("port %q: %w", own, ErrNotFound)
	}
	return append([]ref.Reference(nil), ps...), nil
}

// PeerEndpoints resolves the endpoints that (port, slot) exchanges messages
// with. The instance index followed by slot is split at the peer kernel's
// dimensionality: the head is the peer index and the rest, followed by any
// slot written on the peer side of the conduit, is the peer slot.
func (m *Manager) PeerEndpoints(port ref.Identifier, slot []int) ([]ref.Endpoint, error) {
	peerPorts, err := m.PeerPorts(port)
	if err != nil {
		return nil, err
	}
	combined := make([]int, 0, len(m.index)+len(slot))
	combined = append(combined, m.index...)
	combined = append(combined, slot...)

	out := make([]ref.Endpoint, 0, len(peerPorts))
	for _, pp := range peerPorts {
		base, extra := pp.SplitTrailingIndices()
		last, _ := base.Last()
		peerKernel := base.Prefix(base.Len() - 1)

		shape, ok := m.dims[peerKernel]
		if !ok {
			return nil, fmt.Errorf("dims of kernel %q: %w", peerKernel, ErrNotFound)
		}
		d := len(shape)
		if len(combined) < d {
			return nil, &ref.ConfigError{Subject: "index", Value: fmt.Sprint(combined),
				Err: fmt.Errorf("%w: need %d for %q", ErrIndexTooShort, d, peerKernel)}
		}
		for i := 0; i < d; i++ {
			if combined[i] < 0 || combined[i] >= shape[i] {
				return nil, &ref.ConfigError{Subject: "index", Value: fmt.Sprint(combined[:d]),
					Err: fmt.Errorf("%w: %q has shape %v", ErrIndexOutOfRange, peerKernel, shape)}
			}
		}
		peerSlot := cloneInts(combined[d:])
		peerSlot = append(peerSlot, extra...)
		out = append(out, ref.Endpoint{
			Kernel: peerKernel,
			Index:  cloneInts(combined[:d]),
			Port:   last.Identifier(),
			Slot:   cloneInts(peerSlot),
		})
	}
	return out, nil
}

// PeerDims returns the instance-set shape of a peer kernel.
func (m *Manager) PeerDims(peerKernel ref.Reference) ([]int, error) {
	d, ok := m.dims[peerKernel]
	if !ok {
		return nil, fmt.Errorf("dims of kernel %q: %w", peerKernel, ErrNotFound)
	}
	return cloneInts(d), nil
}

// PeerLocations returns where the post office of peerInstance listens.
func (m *Manager) PeerLocations(peerInstance ref.Reference) ([]string, error) {
	l, ok := m.locations[peerInstance]
	if !ok {
		return nil, fmt.Errorf("locations of instance %q: %w", peerInstance, ErrNotFound)
	}
	return append([]string(nil), l...), nil
}

// InstancesOf lists every instance of kernel with the given shape in
// row-major order. An empty shape yields the kernel itself.
func InstancesOf(kernel ref.Reference, shape []int) []ref.Reference {
	total := 1
	for _, n := range shape {
		if n <= 0 {
			return nil
		}
		total *= n
	}
	out := make([]ref.Reference, 0, total)
	idx := make([]int, len(shape))
	for i := 0; i < total; i++ {
		out = append(out, kernel.AppendIndex(idx...))
		for j := len(idx) - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < shape[j] {
				break
			}
			idx[j] = 0
		}
	}
	return out
}

// cloneInts copies s, returning nil for an empty slice.
func cloneInts(s []int) []int {
	if len(s) == 0 {
		return nil
	}
	return append([]int(nil), s...)
}
