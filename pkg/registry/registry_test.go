package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiscale/muscle3-sub001/pkg/memkv"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
)

func backends(t *testing.T) map[string]Registry {
	t.Helper()
	kv := memkv.New(memkv.Options{})
	t.Cleanup(kv.Close)

	mr := miniredis.RunT(t)
	rr, err := NewRedis(&redis.Options{Addr: mr.Addr()}, "test-sim", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rr.Close() })

	return map[string]Registry{
		"memory": NewMemory(kv, 0),
		"redis":  rr,
	}
}

func TestRegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			inst := ref.MustParse("micro[2]")
			_, err := reg.Locations(ctx, inst)
			assert.ErrorIs(t, err, ErrNotRegistered)

			require.NoError(t, reg.Register(ctx, inst, []string{"tcp:10.0.0.1:9000", "quic:10.0.0.1:9001"}))
			locs, err := reg.Locations(ctx, inst)
			require.NoError(t, err)
			assert.Equal(t, []string{"tcp:10.0.0.1:9000", "quic:10.0.0.1:9001"}, locs)

			// re-registering replaces, never appends
			require.NoError(t, reg.Register(ctx, inst, []string{"tcp:10.0.0.2:9000"}))
			locs, err = reg.Locations(ctx, inst)
			require.NoError(t, err)
			assert.Equal(t, []string{"tcp:10.0.0.2:9000"}, locs)

			require.NoError(t, reg.Deregister(ctx, inst))
			_, err = reg.Locations(ctx, inst)
			assert.ErrorIs(t, err, ErrNotRegistered)
			assert.ErrorIs(t, reg.Deregister(ctx, inst), ErrNotRegistered)
		})
	}
}

func TestDims(t *testing.T) {
	ctx := context.Background()
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			k := ref.MustParse("micro")
			_, err := reg.Dims(ctx, k)
			assert.ErrorIs(t, err, ErrNotRegistered)

			require.NoError(t, reg.SetDims(ctx, k, []int{10, 3}))
			d, err := reg.Dims(ctx, k)
			require.NoError(t, err)
			assert.Equal(t, []int{10, 3}, d)

			var cerr *ref.ConfigError
			assert.True(t, errors.As(reg.SetDims(ctx, k, []int{0}), &cerr))
		})
	}
}

func TestPeerInfo(t *testing.T) {
	ctx := context.Background()
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			micro := ref.MustParse("micro")
			macro := ref.MustParse("macro")
			require.NoError(t, reg.SetDims(ctx, micro, []int{2}))
			require.NoError(t, reg.Register(ctx, ref.MustParse("micro[0]"), []string{"tcp:h:1"}))

			_, _, err := PeerInfo(ctx, reg, []ref.Reference{micro, macro})
			require.ErrorIs(t, err, ErrNotRegistered)

			require.NoError(t, reg.Register(ctx, ref.MustParse("micro[1]"), []string{"tcp:h:2"}))
			require.NoError(t, reg.Register(ctx, macro, []string{"tcp:h:3"}))

			dims, locs, err := PeerInfo(ctx, reg, []ref.Reference{micro, macro})
			require.NoError(t, err)
			assert.Equal(t, []int{2}, dims[micro])
			assert.Nil(t, dims[macro])
			assert.Equal(t, []string{"tcp:h:2"}, locs[ref.MustParse("micro[1]")])
			assert.Equal(t, []string{"tcp:h:3"}, locs[macro])
			assert.Len(t, locs, 3)
		})
	}
}

func TestAwaitPeerInfo(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	reg := NewMemory(kv, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = reg.Register(context.Background(), ref.MustParse("macro"), []string{"mem:po-x"})
	}()
	_, locs, err := AwaitPeerInfo(ctx, reg, []ref.Reference{ref.MustParse("macro")}, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem:po-x"}, locs[ref.MustParse("macro")])
}

func TestAwaitPeerInfoTimeout(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	reg := NewMemory(kv, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := AwaitPeerInfo(ctx, reg, []ref.Reference{ref.MustParse("macro")}, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryTTL(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	reg := NewMemory(kv, 40*time.Millisecond)
	ctx := context.Background()
	inst := ref.MustParse("macro")

	require.NoError(t, reg.Register(ctx, inst, []string{"tcp:h:1"}))
	assert.Equal(t, []string{"macro"}, reg.Instances())
	time.Sleep(100 * time.Millisecond)
	_, err := reg.Locations(ctx, inst)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRedisKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	reg, err := NewRedis(&redis.Options{Addr: mr.Addr()}, "sim1", time.Minute)
	require.NoError(t, err)
	defer reg.Close()
	ctx := context.Background()

	require.NoError(t, reg.Ping(ctx))
	require.NoError(t, reg.Register(ctx, ref.MustParse("micro[3]"), []string{"tcp:a:1", "tcp:b:1"}))
	require.NoError(t, reg.SetDims(ctx, ref.MustParse("micro"), []int{10, 3}))

	l, err := mr.List("sim1:instance:micro[3]")
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp:a:1", "tcp:b:1"}, l)
	assert.True(t, mr.TTL("sim1:instance:micro[3]") > 0)
	v, err := mr.Get("sim1:dims:micro")
	require.NoError(t, err)
	assert.Equal(t, "10,3", v)

	_, err = NewRedis(&redis.Options{Addr: mr.Addr()}, "", 0)
	assert.Error(t, err)
}
