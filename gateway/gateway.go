package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/ordersync"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/session"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Gateway struct {
	config   *config.Config
	orders   *ordersync.Service
	session  *session.Signal
	metrics  *metrics.Registry
	logger   *zap.Logger
	validate *validatorv10.Validate
	router   *gin.Engine
	server   *http.Server
}

func NewGateway(cfg *config.Config, logger *zap.Logger, orders *ordersync.Service, sig *session.Signal, reg *metrics.Registry) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))
	router.Use(metricsMiddleware(reg))

	return &Gateway{
		config:   cfg,
		orders:   orders,
		session:  sig,
		metrics:  reg,
		logger:   logger,
		validate: newValidator(),
		router:   router,
	}
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"mirror": g.orders.MirrorEnabled(),
		})
	})
	g.router.GET("/metrics", gin.WrapH(g.metrics.Handler()))

	v1 := g.router.Group("/api/v1")
	{
		sess := v1.Group("/session")
		{
			sess.POST("", g.login)
			sess.GET("", g.currentSession)
			sess.DELETE("", g.logout)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", g.createOrder)
			orders.GET("", g.listOrders)
			orders.GET("/stream", g.streamOrders)
			orders.GET("/pending-count", g.pendingCount)
			orders.GET("/pending-count/stream", g.streamPendingCount)
			orders.POST("/resync", g.resync)
			orders.GET("/remote", g.remoteOrders)
		}
	}
}

func (g *Gateway) Handler() http.Handler { return g.router }

func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
	g.server = &http.Server{Addr: addr, Handler: g.router}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

// identity returns the signed-in user or writes a 401.
func (g *Gateway) identity(c *gin.Context) (*models.Identity, bool) {
	id := g.session.Current()
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ordersync.ErrNoIdentity.Error()})
		return nil, false
	}
	return id, true
}

func (g *Gateway) login(c *gin.Context) {
	var id models.Identity
	if err := c.ShouldBindJSON(&id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	g.session.Login(id)
	c.JSON(http.StatusOK, id)
}

func (g *Gateway) currentSession(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, id)
}

func (g *Gateway) logout(c *gin.Context) {
	g.session.Logout()
	c.Status(http.StatusNoContent)
}

func (g *Gateway) createOrder(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := bindAndValidate(c, &req, g.validate); err != nil {
		return
	}

	order, err := models.NewOrder(id.UID, req.lines(), time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ID != "" {
		order.ID = req.ID
	}

	saved, err := g.orders.CreateOrder(c.Request.Context(), order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order_not_saved"})
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (g *Gateway) listOrders(c *gin.Context) {
	orders := g.orders.Orders()
	c.JSON(http.StatusOK, gin.H{
		"userId":       g.orders.ActiveUser(),
		"orders":       orders,
		"pendingCount": models.CountPending(orders),
	})
}

func (g *Gateway) pendingCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pendingCount": g.orders.PendingCount()})
}

// streamOrders sends the current list and every later one as server-sent
// events until the client goes away.
func (g *Gateway) streamOrders(c *gin.Context) {
	lists := g.orders.SubscribeOrders(c.Request.Context())
	c.Stream(func(w io.Writer) bool {
		orders, ok := <-lists
		if !ok {
			return false
		}
		c.SSEvent("orders", orders)
		return true
	})
}

func (g *Gateway) streamPendingCount(c *gin.Context) {
	counts := g.orders.SubscribePendingCount(c.Request.Context())
	c.Stream(func(w io.Writer) bool {
		n, ok := <-counts
		if !ok {
			return false
		}
		c.SSEvent("pendingCount", strconv.Itoa(n))
		return true
	})
}

func (g *Gateway) resync(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}

	n, err := g.orders.ResyncPending(c.Request.Context(), id.UID)
	if errors.Is(err, repository.ErrMirrorDisabled) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		g.logger.Error("resync failed", zap.String("user_id", id.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resync_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": n})
}

func (g *Gateway) remoteOrders(c *gin.Context) {
	id, ok := g.identity(c)
	if !ok {
		return
	}

	orders, err := g.orders.RemoteOrders(c.Request.Context(), id.UID)
	if errors.Is(err, repository.ErrMirrorDisabled) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		g.logger.Warn("remote orders unavailable", zap.String("user_id", id.UID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "mirror_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": models.SortNewestFirst(orders)})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func metricsMiddleware(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reg.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
