// Package registry records where each instance's post office can be reached
// and the replication shape of each kernel, so that peers can be resolved at
// startup.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/peers"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

var ErrNotRegistered = errors.New("registry: not registered")

// Registry is implemented by Memory and Redis.
type Registry interface {
	Register(ctx context.Context, instance ref.Reference, locations []string) error
	Deregister(ctx context.Context, instance ref.Reference) error
	Locations(ctx context.Context, instance ref.Reference) ([]string, error)
	SetDims(ctx context.Context, kernel ref.Reference, dims []int) error
	Dims(ctx context.Context, kernel ref.Reference) ([]int, error)
}

// PeerInfo collects dims and locations for every instance of the given
// kernels. A kernel without recorded dims is treated as not replicated.
func PeerInfo(ctx context.Context, reg Registry, kernels []ref.Reference) (peers.Dims, peers.Locations, error) {
	dims := make(peers.Dims, len(kernels))
	locs := make(peers.Locations)
	for _, k := range kernels {
		d, err := reg.Dims(ctx, k)
		switch {
		case errors.Is(err, ErrNotRegistered):
			d = nil
		case err != nil:
			return nil, nil, fmt.Errorf("dims of %s: %w", k, err)
		}
		dims[k] = d
		for _, inst := range peers.InstancesOf(k, d) {
			l, err := reg.Locations(ctx, inst)
			if err != nil {
				return nil, nil, fmt.Errorf("locations of %s: %w", inst, err)
			}
			locs[inst] = l
		}
	}
	return dims, locs, nil
}

// AwaitPeerInfo retries PeerInfo every interval while instances are still
// missing, until ctx ends.
func AwaitPeerInfo(ctx context.Context, reg Registry, kernels []ref.Reference, interval time.Duration) (peers.Dims, peers.Locations, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		dims, locs, err := PeerInfo(ctx, reg, kernels)
		if !errors.Is(err, ErrNotRegistered) {
			return dims, locs, err
		}
		zap.L().Debug("waiting for peers to register", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("%w (last: %v)", ctx.Err(), err)
		case <-t.C:
		}
	}
}

func formatDims(dims []int) string {
	s := make([]string, len(dims))
	for i, d := range dims {
		s[i] = strconv.Itoa(d)
	}
	return strings.Join(s, ",")
}

func parseDims(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("registry: bad dims %q", s)
		}
		out[i] = n
	}
	return out, nil
}

func validateDims(kernel ref.Reference, dims []int) error {
	for _, d := range dims {
		if d <= 0 {
			return &ref.ConfigError{Subject: "dims of " + kernel.String(), Value: formatDims(dims), Err: errors.New("dimensions must be positive")}
		}
	}
	return nil
}
