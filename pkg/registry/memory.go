package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/memkv"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

// Memory is an in-process Registry backed by memkv. Entries written with a
// TTL disappear unless re-registered in time.
type Memory struct {
	kv  *memkv.Store
	ttl time.Duration
}

func NewMemory(kv *memkv.Store, ttl time.Duration) *Memory { return &Memory{kv: kv, ttl: ttl} }

type instanceDoc struct {
	Instance      string   `json:"instance"`
	Locations     []string `json:"locations"`
	UpdatedUnixMs int64    `json:"updated_unix_ms"`
}

func keyInstance(r ref.Reference) string { return "instance:" + r.String() }
func keyDims(r ref.Reference) string     { return "dims:" + r.String() }

func (m *Memory) Register(_ context.Context, instance ref.Reference, locations []string) error {
	doc := instanceDoc{
		Instance:      instance.String(),
		Locations:     append([]string(nil), locations...),
		UpdatedUnixMs: time.Now().UnixMilli(),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.kv.Set(keyInstance(instance), b, m.ttl)
	zap.L().Info("instance registered", zap.Stringer("instance", instance), zap.Strings("locations", locations))
	return nil
}

func (m *Memory) Deregister(_ context.Context, instance ref.Reference) error {
	if !m.kv.Delete(keyInstance(instance)) {
		return fmt.Errorf("%s: %w", instance, ErrNotRegistered)
	}
	return nil
}

func (m *Memory) Locations(_ context.Context, instance ref.Reference) ([]string, error) {
	b, ok := m.kv.Get(keyInstance(instance))
	if !ok {
		return nil, fmt.Errorf("%s: %w", instance, ErrNotRegistered)
	}
	var doc instanceDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("registry: corrupt entry for %s: %w", instance, err)
	}
	return doc.Locations, nil
}

func (m *Memory) SetDims(_ context.Context, kernel ref.Reference, dims []int) error {
	if err := validateDims(kernel, dims); err != nil {
		return err
	}
	m.kv.Set(keyDims(kernel), []byte(formatDims(dims)), 0)
	return nil
}

func (m *Memory) Dims(_ context.Context, kernel ref.Reference) ([]int, error) {
	b, ok := m.kv.Get(keyDims(kernel))
	if !ok {
		return nil, fmt.Errorf("dims of %s: %w", kernel, ErrNotRegistered)
	}
	return parseDims(string(b))
}

// Instances lists the registered instance references.
func (m *Memory) Instances() []string {
	keys := m.kv.Keys("instance:")
	for i, k := range keys {
		keys[i] = k[len("instance:"):]
	}
	return keys
}
