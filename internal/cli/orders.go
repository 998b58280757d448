package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List a user's orders from the local log",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(rootOpts); err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), rootOpts, mirrorNone)
			if err != nil {
				return err
			}
			defer e.Close(cmd.Context())

			orders, err := e.log.GetOrders(cmd.Context(), rootOpts.UserID)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Orders(orders)
		},
	}
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	ID    string
	Items []string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Place an order through the sync service",
		Long: `Place an order through the sync service.

The order is written to the local log first. If a mirror is configured the
command waits a bounded time for the push to finish before exiting. When the
mirror cannot be reached the order is still placed and stays pending.

Example:
  orderctl create -u u1 --item 1:Lamp:10000:2 --item 7:Bulb:250:4`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(rootOpts); err != nil {
				return err
			}
			lines, err := parseItems(opts.Items)
			if err != nil {
				return err
			}
			order, err := models.NewOrder(rootOpts.UserID, lines, time.Now().UTC())
			if err != nil {
				return err
			}
			if len(opts.ID) > models.MaxOrderIDLen {
				return fmt.Errorf("--id is longer than %d characters", models.MaxOrderIDLen)
			}
			if opts.ID != "" {
				order.ID = opts.ID
			}

			// An unreachable mirror never blocks the local write.
			e, err := openEnv(cmd.Context(), rootOpts, mirrorBestEffort)
			if err != nil {
				return err
			}
			defer e.Close(cmd.Context())

			saved, err := e.svc.CreateOrder(cmd.Context(), order)
			if err != nil {
				return err
			}
			e.drain(cmd.Context())

			// Re-read so the printed status reflects the mirror outcome.
			orders, err := e.log.GetOrders(cmd.Context(), rootOpts.UserID)
			if err != nil {
				return err
			}
			for _, o := range orders {
				if o.ID == saved.ID {
					saved = o
				}
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Order(saved)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "order id (generated when empty)")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "line item as productId:name:price:quantity (repeatable)")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

// parseItems reads productId:name:price:quantity specs. Prices are in minor
// currency units.
func parseItems(specs []string) ([]models.LineItem, error) {
	lines := make([]models.LineItem, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid --item %q: want productId:name:price:quantity", spec)
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid product id in %q: %w", spec, err)
		}
		price, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price in %q: %w", spec, err)
		}
		qty, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: %w", spec, err)
		}
		lines = append(lines, models.LineItem{
			Product:  models.ProductSnapshot{ID: id, Name: parts[1], Price: price},
			Quantity: qty,
		})
	}
	return lines, nil
}

// NewStatusCommand creates the status command, used by fulfilment to mark
// orders completed.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "status <order-id> <pending|synced|completed>",
		Short:        "Set the status of one order in the local log",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(rootOpts); err != nil {
				return err
			}
			status := models.Status(args[1])
			if !status.Valid() {
				return fmt.Errorf("invalid status %q", args[1])
			}

			e, err := openEnv(cmd.Context(), rootOpts, mirrorNone)
			if err != nil {
				return err
			}
			defer e.Close(cmd.Context())

			if err := e.log.UpdateStatus(cmd.Context(), args[0], status, rootOpts.UserID); err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Message(
				map[string]interface{}{"id": args[0], "status": status},
				"%s -> %s", args[0], status)
		},
	}
}

// NewResyncCommand creates the resync command.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "resync",
		Short:        "Push every pending order of a user to the remote mirror",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(rootOpts); err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), rootOpts, mirrorRequired)
			if err != nil {
				return err
			}
			defer e.Close(cmd.Context())

			n, err := e.svc.ResyncPending(cmd.Context(), rootOpts.UserID)
			if errors.Is(err, repository.ErrMirrorDisabled) {
				return fmt.Errorf("%w: set mirror.enabled to resync", err)
			}
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Message(
				map[string]interface{}{"synced": n},
				"%d orders synced", n)
		},
	}
}

// NewRemoteCommand creates the remote command.
func NewRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "remote",
		Short:        "List a user's orders as stored in the remote mirror",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(rootOpts); err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), rootOpts, mirrorRequired)
			if err != nil {
				return err
			}
			defer e.Close(cmd.Context())

			orders, err := e.svc.RemoteOrders(cmd.Context(), rootOpts.UserID)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Orders(orders)
		},
	}
}
