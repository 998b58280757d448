package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/kvstore"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/ordersync"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memMirror struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func (m *memMirror) CreateOrder(_ context.Context, o models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orders == nil {
		m.orders = map[string]models.Order{}
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memMirror) GetOrders(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memMirror) Close(context.Context) error { return nil }

type fixture struct {
	gw  *Gateway
	svc *ordersync.Service
	sig *session.Signal
}

func newFixture(t *testing.T, opts ...ordersync.Option) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg, err := config.Load("")
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	sig := session.NewSignal()
	log := repository.NewOrderLog(kvstore.NewMemoryStore(), zap.NewNop())
	opts = append(opts, ordersync.WithSession(sig), ordersync.WithMetrics(reg))
	svc := ordersync.NewService(log, opts...)
	go func() { _ = svc.Run(ctx) }()

	gw := NewGateway(cfg, zap.NewNop(), svc, sig, reg)
	gw.SetupRoutes()
	return &fixture{gw: gw, svc: svc, sig: sig}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, uid string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/session", obj{"uid": uid, "email": uid + "@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return f.svc.ActiveUser() == uid }, time.Second, 5*time.Millisecond)
}

type obj = map[string]interface{}

func checkout() obj {
	return obj{
		"items": []obj{{"productId": 1, "name": "Lamp", "price": 10000, "quantity": 2}},
		"total": 20000,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type listResponse struct {
	UserID       string         `json:"userId"`
	Orders       []models.Order `json:"orders"`
	PendingCount int            `json:"pendingCount"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","mirror":false}`, rec.Body.String())
}

func TestCreateOrder_RequiresSession(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/orders", checkout())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndListOrders(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/v1/orders", checkout())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Order](t, rec)
	assert.Equal(t, "u1", created.UserID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, int64(20000), created.Total)
	assert.NotEmpty(t, created.ID)

	rec = f.do(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse](t, rec)
	assert.Equal(t, "u1", list.UserID)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, created.ID, list.Orders[0].ID)
	assert.Equal(t, 1, list.PendingCount)

	rec = f.do(t, http.MethodGet, "/api/v1/orders/pending-count", nil)
	assert.JSONEq(t, `{"pendingCount":1}`, rec.Body.String())
}

func TestCreateOrder_ClientID(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")

	body := checkout()
	body["id"] = "1"
	rec := f.do(t, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", decode[models.Order](t, rec).ID)

	body["id"] = models.NewOrderID()
	rec = f.do(t, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")

	cases := map[string]struct {
		body obj
		tag  string
	}{
		"no items":       {obj{"items": []obj{}}, "min"},
		"zero quantity":  {obj{"items": []obj{{"productId": 1, "name": "Lamp", "price": 100, "quantity": 0}}}, "required"},
		"missing name":   {obj{"items": []obj{{"productId": 1, "price": 100, "quantity": 1}}}, "required"},
		"total mismatch": {obj{"items": []obj{{"productId": 1, "name": "Lamp", "price": 100, "quantity": 3}}, "total": 200}, "total_match_items"},
		"id too long":    {obj{"id": strings.Repeat("x", 37), "items": []obj{{"productId": 1, "name": "Lamp", "price": 100, "quantity": 1}}}, "max"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/orders", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}](t, rec)
			assert.Equal(t, "validation_failed", resp.Error)
			var tags []string
			for _, tag := range resp.Fields {
				tags = append(tags, tag)
			}
			assert.Contains(t, tags, tc.tag)
		})
	}

	rec := f.do(t, http.MethodPost, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.svc.Orders())
}

func TestMirrorEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/v1/orders/resync", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodGet, "/api/v1/orders/remote", nil).Code)
}

func TestMirroredOrders(t *testing.T) {
	mirror := &memMirror{}
	f := newFixture(t, ordersync.WithMirror(mirror))
	f.login(t, "u1")

	rec := f.do(t, http.MethodPost, "/api/v1/orders", checkout())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, f.svc.Wait(context.Background()))

	list := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/orders", nil))
	require.Len(t, list.Orders, 1)
	assert.Equal(t, models.StatusSynced, list.Orders[0].Status)
	assert.Equal(t, 0, list.PendingCount)

	rec = f.do(t, http.MethodGet, "/api/v1/orders/remote", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listResponse](t, rec).Orders, 1)

	rec = f.do(t, http.MethodPost, "/api/v1/orders/resync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"synced":0}`, rec.Body.String())
}

func TestLogoutClearsList(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/orders", checkout()).Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/session", nil).Code)
	require.Eventually(t, func() bool { return f.svc.ActiveUser() == "" }, time.Second, 5*time.Millisecond)
	assert.Empty(t, decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/orders", nil)).Orders)

	f.login(t, "u1")
	assert.Len(t, decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/orders", nil)).Orders, 1)
}

func readData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestPendingCountStream(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")

	srv := httptest.NewServer(f.gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/orders/pending-count/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	r := bufio.NewReader(resp.Body)
	assert.Equal(t, "0", readData(t, r))

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/orders", checkout()).Code)
	assert.Equal(t, "1", readData(t, r))
}

func TestOrdersStream(t *testing.T) {
	f := newFixture(t)
	f.login(t, "u1")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/orders", checkout()).Code)

	srv := httptest.NewServer(f.gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/orders/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var orders []models.Order
	require.NoError(t, json.Unmarshal([]byte(readData(t, bufio.NewReader(resp.Body))), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "u1", orders[0].UserID)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_http_requests_total{route="/health",status="200"} 1`)
}
