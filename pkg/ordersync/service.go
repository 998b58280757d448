// Package ordersync owns the current order list of the signed-in user. Orders
// are written to the local log first; pushing them to the remote mirror
// happens afterwards on a detached task and never affects the caller.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/observable"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/session"
	"go.uber.org/zap"
)

var (
	ErrNoIdentity = errors.New("no signed-in user")
	ErrNoSession  = errors.New("service has no session signal")
)

// OrderLog is the local durable store the service writes through.
type OrderLog interface {
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
	GetOrders(ctx context.Context, userID string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status models.Status, userID string) error
}

type Option func(*Service)

// WithMirror enables remote mirroring. Without it orders stay pending.
func WithMirror(m repository.Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithMirrorTimeout bounds each mirror attempt. Zero means no bound.
func WithMirrorTimeout(d time.Duration) Option {
	return func(s *Service) { s.mirrorTimeout = d }
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func WithSession(sig *session.Signal) Option {
	return func(s *Service) { s.session = sig }
}

func WithMetrics(r *metrics.Registry) Option {
	return func(s *Service) { s.metrics = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	log           OrderLog
	mirror        repository.Mirror
	mirrorTimeout time.Duration
	dispatcher    Dispatcher
	session       *session.Signal
	metrics       *metrics.Registry
	logger        *zap.Logger
	now           func() time.Time

	// mu serializes changes to activeUID and the published list.
	mu        sync.Mutex
	activeUID string
	orders    *observable.Value[[]models.Order]
}

func NewService(log OrderLog, opts ...Option) *Service {
	s := &Service{
		log:    log,
		logger: zap.NewNop(),
		now:    time.Now,
		orders: observable.NewValue([]models.Order{}, cloneOrders),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("ordersync")
	if s.mirror != nil && s.dispatcher == nil {
		s.dispatcher = NewActorDispatcher(nil, s.logger)
	}
	return s
}

func cloneOrders(orders []models.Order) []models.Order {
	out := make([]models.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

// MirrorEnabled reports whether orders are pushed to a remote mirror.
func (s *Service) MirrorEnabled() bool { return s.mirror != nil }

// ActiveUser returns the user whose orders are currently published.
func (s *Service) ActiveUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeUID
}

// Orders returns the current order list, newest first.
func (s *Service) Orders() []models.Order { return s.orders.Get() }

func (s *Service) SubscribeOrders(ctx context.Context) <-chan []models.Order {
	return s.orders.Subscribe(ctx)
}

func (s *Service) PendingCount() int { return models.CountPending(s.orders.Get()) }

// SubscribePendingCount streams the pending count of every published list.
func (s *Service) SubscribePendingCount(ctx context.Context) <-chan int {
	return observable.Map(ctx, s.orders, models.CountPending)
}

// publish must be called with s.mu held.
func (s *Service) publish(fn func([]models.Order) []models.Order) {
	next := s.orders.Update(fn)
	if s.metrics != nil {
		s.metrics.PendingOrders.Set(float64(models.CountPending(next)))
	}
}

// CreateOrder stores order locally as pending and returns once the write is
// durable. A missing id or timestamp is filled in. When a mirror is
// configured the order is pushed to it in the background.
func (s *Service) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	order = order.Clone()
	order.Status = models.StatusPending
	if order.ID == "" {
		order.ID = models.NewOrderID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}

	// The local write runs to completion even if the caller goes away.
	saved, err := s.log.CreateOrder(context.WithoutCancel(ctx), order)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CreateFailures.Inc()
		}
		s.logger.Error("order not saved",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Error(err))
		return models.Order{}, fmt.Errorf("failed to save order: %w", err)
	}
	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}

	s.mu.Lock()
	if saved.UserID == s.activeUID {
		s.publish(func(cur []models.Order) []models.Order {
			for _, o := range cur {
				if o.ID == saved.ID {
					return cur
				}
			}
			next := make([]models.Order, 0, len(cur)+1)
			next = append(next, saved.Clone())
			return append(next, cur...)
		})
	}
	s.mu.Unlock()

	if s.mirror != nil {
		snapshot := saved.Clone()
		s.dispatcher.Go(func(ctx context.Context) {
			s.mirrorOrder(ctx, snapshot)
		})
	}
	return saved.Clone(), nil
}

// mirrorOrder pushes one order and promotes it to synced on success. Failures
// are logged and leave the order pending.
func (s *Service) mirrorOrder(ctx context.Context, order models.Order) bool {
	pushCtx := ctx
	if s.mirrorTimeout > 0 {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithTimeout(ctx, s.mirrorTimeout)
		defer cancel()
	}

	if err := s.mirror.CreateOrder(pushCtx, order); err != nil {
		s.countMirror(metrics.MirrorFailed)
		s.logger.Warn("order mirror failed, order stays pending",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Error(err))
		return false
	}

	if err := s.log.UpdateStatus(context.WithoutCancel(ctx), order.ID, models.StatusSynced, order.UserID); err != nil {
		s.countMirror(metrics.MirrorFailed)
		s.logger.Error("order mirrored but local status not updated",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Error(err))
		return false
	}
	s.countMirror(metrics.MirrorSynced)
	s.logger.Debug("order synced",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID))

	s.mu.Lock()
	if order.UserID == s.activeUID {
		s.publish(func(cur []models.Order) []models.Order {
			next := cloneOrders(cur)
			for i := range next {
				if next[i].ID == order.ID && next[i].Status == models.StatusPending {
					next[i].Status = models.StatusSynced
				}
			}
			return next
		})
	}
	s.mu.Unlock()
	return true
}

func (s *Service) countMirror(result string) {
	if s.metrics != nil {
		s.metrics.MirrorAttempts.WithLabelValues(result).Inc()
	}
}

// SwitchIdentity replaces the published list with the orders of id, or with
// an empty list when id is nil. Logout does not touch storage.
func (s *Service) SwitchIdentity(ctx context.Context, id *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == nil {
		s.activeUID = ""
		s.publish(func([]models.Order) []models.Order { return []models.Order{} })
		return nil
	}

	s.activeUID = id.UID
	orders, err := s.log.GetOrders(ctx, id.UID)
	if err != nil {
		s.publish(func([]models.Order) []models.Order { return []models.Order{} })
		return fmt.Errorf("failed to load orders for %s: %w", id.UID, err)
	}
	s.publish(func([]models.Order) []models.Order { return newestFirst(orders) })
	return nil
}

// newestFirst reverses the log's insertion order so reloads match the order
// in which CreateOrder prepends.
func newestFirst(orders []models.Order) []models.Order {
	out := make([]models.Order, len(orders))
	for i, o := range orders {
		out[len(orders)-1-i] = o
	}
	return out
}

// Run follows the session signal until ctx is done, reloading the order list
// on every identity change.
func (s *Service) Run(ctx context.Context) error {
	if s.session == nil {
		return ErrNoSession
	}
	for id := range s.session.Subscribe(ctx) {
		if err := s.SwitchIdentity(ctx, id); err != nil {
			s.logger.Error("identity switch failed", zap.Error(err))
		}
	}
	return ctx.Err()
}

// ResyncPending pushes every pending order of userID to the mirror, one at a
// time, and returns how many were promoted to synced.
func (s *Service) ResyncPending(ctx context.Context, userID string) (int, error) {
	if s.mirror == nil {
		return 0, repository.ErrMirrorDisabled
	}
	orders, err := s.log.GetOrders(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load orders for %s: %w", userID, err)
	}

	synced := 0
	for _, o := range orders {
		if o.Status != models.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if s.mirrorOrder(ctx, o.Clone()) {
			synced++
		}
	}
	s.logger.Info("resync finished",
		zap.String("user_id", userID),
		zap.Int("synced", synced))
	return synced, nil
}

// RemoteOrders lists the mirror's copy of userID's orders.
func (s *Service) RemoteOrders(ctx context.Context, userID string) ([]models.Order, error) {
	if s.mirror == nil {
		return nil, repository.ErrMirrorDisabled
	}
	return s.mirror.GetOrders(ctx, userID)
}

// Wait blocks until all background mirror attempts have finished or ctx is
// done. A mirror call with no timeout can hang forever, so shutdown paths
// pass a bounded ctx.
func (s *Service) Wait(ctx context.Context) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Wait(ctx)
}
