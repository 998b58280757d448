package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MirrorSynced = "synced"
	MirrorFailed = "failed"
)

type Registry struct {
	reg            *prometheus.Registry
	OrdersCreated  prometheus.Counter
	CreateFailures prometheus.Counter
	MirrorAttempts *prometheus.CounterVec
	PendingOrders  prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Orders durably written to the local order log.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_order_create_failures_total",
		Help: "Order creations rejected because the local write failed.",
	})
	mirror := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_mirror_attempts_total",
		Help: "Remote mirror pushes by result.",
	}, []string{"result"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_pending_orders",
		Help: "Pending orders in the active user's current order list.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"route", "status"})

	r.MustRegister(created, failures, mirror, pending, requests)
	return &Registry{
		reg:            r,
		OrdersCreated:  created,
		CreateFailures: failures,
		MirrorAttempts: mirror,
		PendingOrders:  pending,
		HTTPRequests:   requests,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
