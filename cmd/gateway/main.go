package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/kvstore"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/ordersync"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/session"
	"go.uber.org/zap"
)

func main() {
	configPath := os.Getenv("STOREFRONT_CONFIG")
	if configPath == "" {
		configPath = "config/gateway.yaml"
	}

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront gateway",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("mirror", cfg.Mirror.Enabled),
		zap.Int("port", cfg.Gateway.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kvstore.Open(cfg.Storage)
	if err != nil {
		log.Fatal("Invalid storage configuration", zap.Error(err))
	}
	defer store.Close()

	reg := metrics.NewRegistry()
	sig := session.NewSignal()
	opts := []ordersync.Option{
		ordersync.WithLogger(log),
		ordersync.WithSession(sig),
		ordersync.WithMetrics(reg),
		ordersync.WithMirrorTimeout(cfg.Mirror.Timeout),
		ordersync.WithDispatcher(ordersync.NewActorDispatcher(actor.NewActorSystem(), log)),
	}

	// The mirror is optional; without it orders stay pending.
	var remote repository.Mirror
	mirror, err := repository.NewMirror(ctx, cfg.Mirror)
	switch {
	case errors.Is(err, repository.ErrMirrorDisabled):
		log.Info("Remote mirror disabled, running local only")
	case err != nil:
		log.Warn("Failed to connect remote mirror, running local only", zap.Error(err))
	default:
		remote = mirror
		opts = append(opts, ordersync.WithMirror(mirror))
	}

	svc := ordersync.NewService(repository.NewOrderLog(store, log), opts...)
	go func() {
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Order sync stopped", zap.Error(err))
		}
	}()

	// Setup service discovery
	var sd *discovery.ServiceDiscovery
	instance := &discovery.ServiceInstance{Name: cfg.Server.Name, Host: cfg.Gateway.Host, Port: cfg.Gateway.Port}
	if cfg.Etcd.Enabled {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			log.Warn("Failed to register gateway", zap.Error(err))
		}
	}

	gw := gateway.NewGateway(cfg, log, svc, sig, reg)
	gw.SetupRoutes()

	gwErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			gwErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err := <-gwErr:
		log.Error("Gateway error", zap.Error(err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn("Gateway shutdown", zap.Error(err))
	}

	if sd != nil {
		_ = sd.Deregister(shutdownCtx, instance)
		sd.Close()
	}

	// Closing the mirror first makes in-flight pushes fail fast; whatever is
	// still running at the deadline is abandoned and those orders stay pending.
	if remote != nil {
		if err := remote.Close(shutdownCtx); err != nil {
			log.Warn("Failed to close remote mirror", zap.Error(err))
		}
	}
	if err := svc.Wait(shutdownCtx); err != nil {
		log.Warn("Mirror pushes still running at shutdown", zap.Error(err))
	}
	log.Info("Gateway stopped")
}
