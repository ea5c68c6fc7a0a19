// Package topology loads the coupling model: which kernels exist, how they are
// replicated and which ports are connected by conduits.
//
//	kernels:
//	  macro: []
//	  micro: [10]
//	conduits:
//	  - macro.out -> micro.in
//	  - micro.out -> macro.in
package topology

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/multiscale/muscle3-sub001/pkg/peers"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

type file struct {
	Kernels  map[string][]int `yaml:"kernels"`
	Conduits []string         `yaml:"conduits"`
}

// Model is a validated coupling model.
type Model struct {
	Dims     peers.Dims
	Conduits []ref.Conduit
}

// Load reads and validates a model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return Parse(data)
}

// Parse decodes a model document. Unknown keys are rejected.
func Parse(data []byte) (*Model, error) {
	var f file
	var err error
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	m := &Model{Dims: make(peers.Dims, len(f.Kernels))}
	for name, dims := range f.Kernels {
		k, err := ref.ParseReference(name)
		if err != nil {
			return nil, err
		}
		if _, idx := k.SplitTrailingIndices(); idx != nil {
			return nil, &ref.ConfigError{Subject: "kernel", Value: name, Err: errors.New("kernel names cannot carry an index")}
		}
		for _, d := range dims {
			if d <= 0 {
				return nil, &ref.ConfigError{Subject: "dims of " + name, Value: fmt.Sprint(dims), Err: errors.New("dimensions must be positive")}
			}
		}
		m.Dims[k] = append([]int(nil), dims...)
	}
	for _, s := range f.Conduits {
		c, err := ref.ParseConduit(s)
		if err != nil {
			return nil, err
		}
		for _, k := range []ref.Reference{c.SendingKernel(), c.ReceivingKernel()} {
			if _, ok := m.Dims[k]; !ok {
				return nil, &ref.ConfigError{Subject: "conduit", Value: s, Err: fmt.Errorf("undeclared kernel %s", k)}
			}
		}
		m.Conduits = append(m.Conduits, c)
	}
	if m.Conduits, err = peers.UniqueConduits(m.Conduits); err != nil {
		return nil, err
	}
	return m, nil
}

// Kernels returns the declared kernels sorted by name.
func (m *Model) Kernels() []ref.Reference {
	out := make([]ref.Reference, 0, len(m.Dims))
	for k := range m.Dims {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Instances enumerates every instance of every kernel.
func (m *Model) Instances() []ref.Reference {
	var out []ref.Reference
	for _, k := range m.Kernels() {
		out = append(out, peers.InstancesOf(k, m.Dims[k])...)
	}
	return out
}

// PeerKernels returns the kernels connected to kernel by any conduit, sorted.
func (m *Model) PeerKernels(kernel ref.Reference) []ref.Reference {
	seen := make(map[ref.Reference]bool)
	var out []ref.Reference
	add := func(k ref.Reference) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, c := range m.Conduits {
		if c.SendingKernel() == kernel {
			add(c.ReceivingKernel())
		}
		if c.ReceivingKernel() == kernel {
			add(c.SendingKernel())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Split checks that instance names an instance of a declared kernel and
// returns its kernel and index.
func (m *Model) Split(instance ref.Reference) (ref.Reference, []int, error) {
	kernel, index := instance.SplitTrailingIndices()
	dims, ok := m.Dims[kernel]
	if !ok {
		return ref.Reference{}, nil, &ref.ConfigError{Subject: "instance", Value: instance.String(), Err: errors.New("kernel not in model")}
	}
	if len(index) != len(dims) {
		return ref.Reference{}, nil, &ref.ConfigError{Subject: "instance", Value: instance.String(), Err: fmt.Errorf("kernel has %d dimensions", len(dims))}
	}
	for i, n := range index {
		if n >= dims[i] {
			return ref.Reference{}, nil, &ref.ConfigError{Subject: "instance", Value: instance.String(), Err: peers.ErrIndexOutOfRange}
		}
	}
	return kernel, index, nil
}

// Manager builds the peer resolver for instance, using the model's dims and
// the given peer locations.
func (m *Model) Manager(instance ref.Reference, locs peers.Locations) (*peers.Manager, error) {
	kernel, index, err := m.Split(instance)
	if err != nil {
		return nil, err
	}
	return peers.NewManager(kernel, index, m.Conduits, m.Dims, locs)
}
