package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
)

var ErrMirrorDisabled = errors.New("remote mirror disabled")

// Mirror is the remote system of record. It never changes an order's status;
// CreateOrder is idempotent per order id so a repeated push leaves one record.
type Mirror interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrders(ctx context.Context, userID string) ([]models.Order, error)
	Close(ctx context.Context) error
}

// NewMirror connects the configured backend. It returns ErrMirrorDisabled
// when mirroring is switched off.
func NewMirror(ctx context.Context, cfg config.MirrorConfig) (Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrMirrorDisabled
	}
	var (
		m   Mirror
		err error
	)
	switch cfg.Backend {
	case "mongodb":
		m, err = NewMongoMirror(ctx, &cfg.MongoDB)
	case "dynamodb":
		m, err = NewDynamoMirror(ctx, &cfg.DynamoDB)
	case "mysql":
		m, err = NewSQLMirror(&cfg.MySQL)
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
