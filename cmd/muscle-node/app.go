package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/multiscale/muscle3-sub001/pkg/config"
	"github.com/multiscale/muscle3-sub001/pkg/memkv"
	"github.com/multiscale/muscle3-sub001/pkg/observability"
	"github.com/multiscale/muscle3-sub001/pkg/postoffice"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
	"github.com/multiscale/muscle3-sub001/pkg/registry"
	"github.com/multiscale/muscle3-sub001/pkg/topology"
	"github.com/multiscale/muscle3-sub001/pkg/transport"
	"github.com/multiscale/muscle3-sub001/pkg/transports"
)

// errMemoryWaitPeers rejects --wait-peers with the in-process registry, which
// other nodes never see.
var errMemoryWaitPeers = errors.New("--wait-peers needs a shared registry (registry.backend: redis)")

// run is the main entry point after CLI parsing. It returns once ctx is
// cancelled and shutdown has completed.
func run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	inst, err := cfg.InstanceRef(opts.Instance)
	if err != nil {
		return err
	}
	if opts.WaitPeers && cfg.Registry.Backend == "memory" {
		return errMemoryWaitPeers
	}
	logger, err := observability.SetupLogger(cfg.Log, inst.String())
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	model, err := topology.Load(cfg.Model)
	if err != nil {
		return err
	}
	// a miswired model fails here, before anything binds or registers
	pm, err := model.Manager(inst, nil)
	if err != nil {
		return err
	}
	kernel := pm.Kernel()

	reg, closeReg, err := openRegistry(cfg.Registry)
	if err != nil {
		return err
	}
	defer closeReg()

	listenSet, err := transports.NewSet(uniqueKinds(cfg.Transports)...)
	if err != nil {
		return err
	}

	// servers keep serving through the drain that follows ctx ending
	sctx, stopServers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServers()
	po := postoffice.New()
	servers, err := startServers(sctx, listenSet, cfg.Transports, postoffice.NewHandler(po))
	defer func() {
		for _, s := range servers {
			_ = s.Close()
		}
	}()
	if err != nil {
		return err
	}
	locations := make([]string, len(servers))
	for i, s := range servers {
		locations[i] = s.Location()
	}

	if d := model.Dims[kernel]; len(d) > 0 {
		if err := reg.SetDims(ctx, kernel, d); err != nil {
			return err
		}
	}
	if err := reg.Register(ctx, inst, locations); err != nil {
		return err
	}
	zap.L().Info("node is running", zap.Strings("locations", locations))

	if opts.WaitPeers {
		if err := waitPeers(ctx, cfg, model, inst, reg); err != nil {
			return err
		}
	}

	<-ctx.Done()
	zap.L().Info("shutting down", zap.Any("pending", po.Stats()))
	return shutdown(cfg.Shutdown.DrainTimeout(), po, reg, inst)
}

func shutdown(drain time.Duration, po *postoffice.PostOffice, reg registry.Registry, inst ref.Reference) error {
	dctx := context.Background()
	if drain > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, drain)
		defer cancel()
	}
	drainErr := po.WaitForReceivers(dctx)
	if drainErr != nil {
		zap.L().Warn("receivers did not collect every message", zap.Any("left", po.Stats()), zap.Error(drainErr))
	} else {
		zap.L().Info("all messages collected")
	}

	// the registry may be remote; give deregistration its own short budget
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Deregister(rctx, inst); err != nil && !errors.Is(err, registry.ErrNotRegistered) {
		return errors.Join(drainErr, err)
	}
	return drainErr
}

func startServers(ctx context.Context, set *transport.Set, tcs []config.TransportConfig, h transport.Handler) ([]*transport.Server, error) {
	servers := make([]*transport.Server, len(tcs))
	var g errgroup.Group
	for i, tc := range tcs {
		i, tc := i, tc
		g.Go(func() error {
			k, err := transport.ParseKind(tc.Kind)
			if err != nil {
				return err
			}
			srv, err := transport.NewServer(ctx, set.ByKind(k), tc.Listen, h)
			if err != nil {
				return fmt.Errorf("%s server: %w", tc.Kind, err)
			}
			servers[i] = srv
			return nil
		})
	}
	err := g.Wait()
	started := servers[:0]
	for _, s := range servers {
		if s != nil {
			started = append(started, s)
		}
	}
	return started, err
}

func waitPeers(ctx context.Context, cfg *config.Config, model *topology.Model, inst ref.Reference, reg registry.Registry) error {
	kernel, _, _ := model.Split(inst)
	wctx := ctx
	if t := cfg.Registry.WaitTimeout(); t > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	_, locs, err := registry.AwaitPeerInfo(wctx, reg, model.PeerKernels(kernel), cfg.Registry.Poll())
	if err != nil {
		return fmt.Errorf("waiting for peers: %w", err)
	}
	dialSet, err := transports.NewSet(dialKinds(cfg.Transports)...)
	if err != nil {
		return err
	}
	pool := transport.NewClientPool(dialSet)
	defer pool.Close()
	for peer, l := range locs {
		c, err := pool.Get(wctx, peer.String(), l)
		if err != nil {
			return fmt.Errorf("peer %s unreachable: %w", peer, err)
		}
		zap.L().Info("peer reachable", zap.Stringer("peer", peer), zap.String("location", c.Location()))
	}
	return nil
}

func openRegistry(rc config.RegistryConfig) (registry.Registry, func(), error) {
	switch rc.Backend {
	case "redis":
		r, err := registry.NewRedis(&redis.Options{Addr: rc.Address, Password: rc.Password, DB: rc.DB}, rc.KeyPrefix, rc.TTL())
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		kv := memkv.New(memkv.Options{})
		return registry.NewMemory(kv, rc.TTL()), kv.Close, nil
	}
}

func uniqueKinds(tcs []config.TransportConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range config.Kinds(tcs) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// dialKinds adds tcp and quic so that peers listening on those can always be
// reached.
func dialKinds(tcs []config.TransportConfig) []string {
	return uniqueKinds(append(append([]config.TransportConfig(nil), tcs...), config.TransportConfig{Kind: "tcp"}, config.TransportConfig{Kind: "quic"}))
}
