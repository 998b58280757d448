package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// instanceFinder is the part of discovery.ServiceDiscovery the gateways
// command uses.
type instanceFinder interface {
	Discover(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance, error)
	Close() error
}

var newInstanceFinder = func(cfg *config.EtcdConfig, logger *zap.Logger) (instanceFinder, error) {
	sd, err := discovery.NewServiceDiscovery(cfg, logger)
	if err != nil {
		return nil, err
	}
	return sd, nil
}

// NewGatewaysCommand creates the gateways command.
func NewGatewaysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "gateways",
		Short:        "List running gateways registered in etcd",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if !cfg.Etcd.Enabled {
				return errors.New("service discovery is off: set etcd.enabled")
			}
			log, err := newLogger(cfg, rootOpts)
			if err != nil {
				return err
			}
			defer log.Sync()

			finder, err := newInstanceFinder(&cfg.Etcd, log)
			if err != nil {
				return err
			}
			defer finder.Close()

			instances, err := finder.Discover(cmd.Context(), cfg.Server.Name)
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout())
			if f.Format == "json" {
				addrs := make([]string, 0, len(instances))
				for _, inst := range instances {
					addrs = append(addrs, inst.Addr())
				}
				return f.JSON(map[string]interface{}{"service": cfg.Server.Name, "addresses": addrs})
			}
			tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tADDRESS")
			for _, inst := range instances {
				fmt.Fprintf(tw, "%s\t%s\n", inst.Name, inst.Addr())
			}
			return tw.Flush()
		},
	}
}
