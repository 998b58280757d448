package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/storefront/pkg/kvstore"
	"github.com/example/storefront/pkg/models"
	"go.uber.org/zap"
)

const orderKeyPrefix = "orders_"

// OrderKey is the storage key holding a user's whole order list.
func OrderKey(userID string) string {
	return orderKeyPrefix + userID
}

// OrderLog is the durable per-user order list. Each write rewrites the whole
// list; writes for one user are serialized within this OrderLog. Two processes
// sharing a store (redis) can still lose an update.
type OrderLog struct {
	store  kvstore.Store
	logger *zap.Logger
	locks  userLocks
}

func NewOrderLog(store kvstore.Store, logger *zap.Logger) *OrderLog {
	return &OrderLog{store: store, logger: logger.Named("orderlog")}
}

// userLocks hands out one mutex per user, dropped once nobody holds it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (u *userLocks) lock(userID string) (unlock func()) {
	u.mu.Lock()
	if u.locks == nil {
		u.locks = make(map[string]*userLock)
	}
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}

// load returns the stored list for userID. A missing or undecodable record is
// an empty list; only store errors are returned.
func (l *OrderLog) load(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	found, err := kvstore.GetJSON(ctx, l.store, OrderKey(userID), &orders)
	if err != nil && !found {
		return nil, fmt.Errorf("failed to read orders for %s: %w", userID, err)
	}
	if err != nil {
		l.logger.Warn("corrupt order record treated as empty",
			zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	return orders, nil
}

func (l *OrderLog) save(ctx context.Context, userID string, orders []models.Order) error {
	if err := kvstore.SetJSON(ctx, l.store, OrderKey(userID), orders); err != nil {
		return fmt.Errorf("failed to write orders for %s: %w", userID, err)
	}
	return nil
}

// CreateOrder appends order to its user's list and returns it once the write
// is durable. Duplicate ids are not detected.
func (l *OrderLog) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	if err := order.Validate(); err != nil {
		return models.Order{}, err
	}

	unlock := l.locks.lock(order.UserID)
	defer unlock()
	orders, err := l.load(ctx, order.UserID)
	if err != nil {
		return models.Order{}, err
	}
	orders = append(orders, order)
	if err := l.save(ctx, order.UserID, orders); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// GetOrders returns the stored orders for userID in insertion order.
func (l *OrderLog) GetOrders(ctx context.Context, userID string) ([]models.Order, error) {
	orders, err := l.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// UpdateStatus sets the status of orderID in userID's list. An unknown id is a
// no-op and nothing is written.
func (l *OrderLog) UpdateStatus(ctx context.Context, orderID string, status models.Status, userID string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidOrder, status)
	}

	unlock := l.locks.lock(userID)
	defer unlock()
	orders, err := l.load(ctx, userID)
	if err != nil {
		return err
	}
	for i := range orders {
		if orders[i].ID == orderID {
			orders[i].Status = status
			return l.save(ctx, userID, orders)
		}
	}
	return nil
}
