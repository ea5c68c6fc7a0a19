package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/multiscale/muscle3-sub001/pkg/config"
	"github.com/multiscale/muscle3-sub001/pkg/memkv"
	"github.com/multiscale/muscle3-sub001/pkg/peers"
	"github.com/multiscale/muscle3-sub001/pkg/postoffice"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
	"github.com/multiscale/muscle3-sub001/pkg/registry"
	"github.com/multiscale/muscle3-sub001/pkg/transport"
	"github.com/multiscale/muscle3-sub001/pkg/transports"
)

func TestRunStopsCleanly(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	dir := t.TempDir()
	model := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(model, []byte("kernels: {macro: [], micro: [2]}\nconduits: [macro.out -> micro.in]\n"), 0o644))
	cfgPath := filepath.Join(dir, "muscle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
model: `+model+`
log: {level: error}
transports:
  - kind: mem
  - kind: tcp
    listen: ["127.0.0.1:0"]
shutdown: {drain_timeout_ms: 1000}
`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, Options{ConfigPath: cfgPath, Instance: "micro[1]"}) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunRejectsUnknownInstance(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	dir := t.TempDir()
	model := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(model, []byte("kernels: {macro: []}\n"), 0o644))
	cfgPath := filepath.Join(dir, "muscle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model: "+model+"\nlog: {level: error}\n"), 0o644))

	err := run(context.Background(), Options{ConfigPath: cfgPath, Instance: "micro[0]"})
	var cerr *ref.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestRunRejectsMultiplyConnectedModel(t *testing.T) {
	prev := zap.L()
	defer zap.ReplaceGlobals(prev)

	dir := t.TempDir()
	model := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(model, []byte("kernels: {a: [], b: [], c: []}\nconduits: [a.out -> c.in, b.out -> c.in]\n"), 0o644))
	cfgPath := filepath.Join(dir, "muscle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model: "+model+"\nlog: {level: error}\n"), 0o644))

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), Options{ConfigPath: cfgPath, Instance: "c"}) }()
	select {
	case err := <-done:
		var cerr *ref.ConfigError
		assert.ErrorAs(t, err, &cerr)
		assert.ErrorIs(t, err, peers.ErrMultiplyConnected)
	case <-time.After(5 * time.Second):
		t.Fatal("node started with a multiply connected port")
	}
}

func TestRunRejectsWaitPeersWithMemoryRegistry(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(model, []byte("kernels: {macro: []}\n"), 0o644))
	cfgPath := filepath.Join(dir, "muscle.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model: "+model+"\nlog: {level: error}\n"), 0o644))

	err := run(context.Background(), Options{ConfigPath: cfgPath, Instance: "macro", WaitPeers: true})
	assert.ErrorIs(t, err, errMemoryWaitPeers)
}

func TestShutdownDrainsThenDeregisters(t *testing.T) {
	kv := memkv.New(memkv.Options{})
	defer kv.Close()
	reg := registry.NewMemory(kv, 0)
	ctx := context.Background()
	inst := ref.MustParse("macro")
	require.NoError(t, reg.Register(ctx, inst, []string{"mem:x"}))

	po := postoffice.New()
	po.Deposit(ref.MustParse("micro.in"), []byte("m"))

	// nobody pulls, so the drain times out but deregistration still happens
	err := shutdown(30*time.Millisecond, po, reg, inst)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = reg.Locations(ctx, inst)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	po = postoffice.New()
	require.NoError(t, shutdown(0, po, reg, inst))
}

func TestStartServers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tcs := []config.TransportConfig{{Kind: "mem"}, {Kind: "mem"}, {Kind: "tcp", Listen: []string{"127.0.0.1:0"}}}
	assert.Equal(t, []string{"mem", "tcp"}, uniqueKinds(tcs))
	assert.Equal(t, []string{"mem", "tcp", "quic"}, dialKinds(tcs))

	set, err := transports.NewSet(uniqueKinds(tcs)...)
	require.NoError(t, err)
	servers, err := startServers(ctx, set, tcs, postoffice.NewHandler(postoffice.New()))
	require.NoError(t, err)
	require.Len(t, servers, 3)
	for _, s := range servers {
		defer s.Close()
	}
	assert.True(t, transport.HasScheme(servers[2].Location(), "tcp"))

	_, err = startServers(ctx, set, []config.TransportConfig{{Kind: "carrier-pigeon"}}, nil)
	assert.Error(t, err)
}
