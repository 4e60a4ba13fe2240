package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgossip/discovery"
	"github.com/ryandielhenn/zephyrgossip/internal/config"
	"github.com/ryandielhenn/zephyrgossip/internal/telemetry"
	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
	"github.com/ryandielhenn/zephyrgossip/pkg/node"
	"github.com/ryandielhenn/zephyrgossip/pkg/peerstore"
	"github.com/ryandielhenn/zephyrgossip/pkg/ring"
	"github.com/ryandielhenn/zephyrgossip/pkg/transport/grpctransport"
)

var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	boot, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("load config", zap.Error(err))
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.ZapLevel())
	log, err := zc.Build()
	if err != nil {
		boot.Fatal("build logger", zap.Error(err))
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("node stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.SetBuildInfo(version, gitSHA)
	gcfg, err := cfg.Gossip()
	if err != nil {
		return err
	}
	self := node.NormalizeHostPort(cfg.SelfAddr, gossipPort(cfg.GossipAddr))
	log = log.With(zap.String("self", self))

	// 1. Optional etcd client for seeds, registration and the snapshot store
	var cli *clientv3.Client
	if len(cfg.EtcdEndpoints) > 0 {
		log.Info("creating etcd client", zap.Strings("endpoints", cfg.EtcdEndpoints))
		cli, err = discovery.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			return err
		}
		defer cli.Close()
	}

	// 2. Snapshot store
	var store peerstore.Store
	switch cfg.StoreBackend {
	case config.StoreFile:
		store = peerstore.NewFileStore(cfg.StorePath)
	case config.StoreEtcd:
		store = peerstore.NewEtcdStore(cli, cfg.EtcdPrefix+"/snapshots/"+self)
	}

	// 3. Gossip controller over gRPC
	pool := grpctransport.NewPool(log)
	opts := []gossip.Option{
		gossip.WithLogger(log),
		gossip.WithMetrics(telemetry.GossipMetrics{}),
	}
	var writer *peerstore.AsyncWriter
	if store != nil {
		writer = peerstore.NewAsyncWriter(store, log)
		opts = append(opts, gossip.WithSnapshotWriter(writer))
	}
	ctrl := gossip.NewController(gcfg, self, pool, opts...)

	// 4. Placement ring follows ALIVE membership
	r := ring.New(128, ring.FNV32a)
	r.Add(self)
	ctrl.Peers().OnChange(r.Observe)

	if store != nil {
		restore(ctx, store, ctrl, log)
	}
	seeds := cfg.Seeds
	if cli != nil {
		found, err := discovery.FetchSeeds(ctx, cli, cfg.EtcdPrefix)
		if err != nil {
			log.Warn("fetch seeds from etcd", zap.Error(err))
		}
		seeds = append(seeds, found...)
	}
	ctrl.AddSeeds(node.NormalizeSeeds(seeds, self, gossipPort(cfg.GossipAddr)))

	// 5. Listeners
	lis, err := net.Listen("tcp", cfg.GossipAddr)
	if err != nil {
		return err
	}
	srv := grpctransport.NewServer(ctrl, log)

	n := node.NewNode(ctrl, r, self, cfg.Partitions, cfg.ReplicationFactor)
	mux := http.NewServeMux()
	mux.Handle("/healthz", telemetry.Instrument("healthz", http.HandlerFunc(n.Healthz)))
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(n.Info)))
	mux.Handle("/members", telemetry.Instrument("members", http.HandlerFunc(n.Members)))
	mux.Handle("/partitions", telemetry.Instrument("partitions", http.HandlerFunc(n.Partitions)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	hs := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 3)
	go func() { errc <- ctrl.Run(ctx) }()
	go func() { errc <- srv.Serve(lis) }()
	go func() {
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()
	log.Info("node listening",
		zap.String("gossip", cfg.GossipAddr),
		zap.String("http", cfg.HTTPAddr),
		zap.Stringer("incarnation", ctrl.Peers().Local().Incarnation))

	// 6. Advertise only once the gossip listener is up
	var reg *discovery.Registration
	if cli != nil {
		reg, err = discovery.RegisterNode(ctx, cli, cfg.EtcdPrefix, self, cfg.EtcdLeaseTTL, log)
		if err != nil {
			log.Warn("etcd registration failed", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
		if err != nil {
			log.Error("component failed", zap.Error(err))
		}
	}
	stop()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	if reg != nil {
		if err := reg.Close(sctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := hs.Shutdown(sctx); err != nil {
		result = multierror.Append(result, err)
	}
	srv.Stop(sctx)
	if err := pool.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func restore(ctx context.Context, store peerstore.Store, ctrl *gossip.Controller, log *zap.Logger) {
	data, err := store.Load(ctx)
	if errors.Is(err, peerstore.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("load snapshot", zap.Error(err))
		return
	}
	snap, err := gossip.DecodeSnapshot(data)
	if err != nil {
		log.Warn("decode snapshot", zap.Error(err))
		return
	}
	ctrl.Restore(snap)
}

func gossipPort(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil && port != "" {
		return port
	}
	return "7946"
}
