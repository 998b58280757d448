package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/kvstore"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/ordersync"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	UserID     string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for orderctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orderctl",
		Short: "Inspect and repair the local order log",
		Long: `orderctl works directly on the local order log of one user.

It uses the same configuration as the gateway, so do not point it at a
pebble directory that a running gateway has open.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (defaults and STOREFRONT_* env when empty)")
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "user id whose orders to act on")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewResyncCommand(opts))
	cmd.AddCommand(NewRemoteCommand(opts))
	cmd.AddCommand(NewGatewaysCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func requireUser(opts *RootOptions) error {
	if opts.UserID == "" {
		return errors.New("--user is required")
	}
	return nil
}

// newLogger sends logs to stderr so they never mix with command output.
func newLogger(cfg *config.Config, opts *RootOptions) (*zap.Logger, error) {
	cfg.Log.OutputPaths = []string{"stderr"}
	cfg.Log.Encoding = "console"
	cfg.Log.Level = "warn"
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return logger.New(cfg.Log)
}

// drainTimeout bounds how long a command waits for background mirror pushes
// before exiting. Orders still being pushed stay pending.
const drainTimeout = 10 * time.Second

// mirrorMode says how a command treats the remote mirror.
type mirrorMode int

const (
	// mirrorNone never connects to the mirror.
	mirrorNone mirrorMode = iota
	// mirrorBestEffort runs local-only when the mirror cannot be reached.
	mirrorBestEffort
	// mirrorRequired fails when the mirror cannot be reached.
	mirrorRequired
)

// env is everything a command needs, opened from the configuration.
type env struct {
	log    *repository.OrderLog
	svc    *ordersync.Service
	store  *kvstore.Lazy
	mirror repository.Mirror
	logger *zap.Logger
}

func openEnv(ctx context.Context, opts *RootOptions, mode mirrorMode) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, opts)
	if err != nil {
		return nil, err
	}

	store, err := kvstore.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	e := &env{store: store, logger: log, log: repository.NewOrderLog(store, log)}

	svcOpts := []ordersync.Option{
		ordersync.WithLogger(log),
		ordersync.WithMirrorTimeout(cfg.Mirror.Timeout),
	}
	if mode != mirrorNone {
		mirror, err := repository.NewMirror(ctx, cfg.Mirror)
		switch {
		case errors.Is(err, repository.ErrMirrorDisabled):
		case err != nil && mode == mirrorBestEffort:
			log.Warn("Failed to connect remote mirror, running local only", zap.Error(err))
		case err != nil:
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect remote mirror: %w", err)
		default:
			e.mirror = mirror
			svcOpts = append(svcOpts,
				ordersync.WithMirror(mirror),
				ordersync.WithDispatcher(ordersync.NewActorDispatcher(actor.NewActorSystem(), log)))
		}
	}
	e.svc = ordersync.NewService(e.log, svcOpts...)
	return e, nil
}

// drain waits up to drainTimeout for background mirror pushes.
func (e *env) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := e.svc.Wait(ctx); err != nil {
		e.logger.Warn("mirror push still running, order stays pending", zap.Error(err))
	}
}

// Close closes the mirror before draining so hung pushes fail, then closes
// the store.
func (e *env) Close(ctx context.Context) {
	if e.mirror != nil {
		_ = e.mirror.Close(ctx)
	}
	e.drain(ctx)
	_ = e.store.Close()
	_ = e.logger.Sync()
}
