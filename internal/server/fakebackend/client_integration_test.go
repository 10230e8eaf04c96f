package fakebackend_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/revsearch/internal/client/billing"
	"github.com/dmitrijs2005/revsearch/internal/client/client"
	"github.com/dmitrijs2005/revsearch/internal/client/entitlement"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/revsearch/internal/client/services"
	"github.com/dmitrijs2005/revsearch/internal/client/storage"
	"github.com/dmitrijs2005/revsearch/internal/logging"
	"github.com/dmitrijs2005/revsearch/internal/server/fakebackend"
)

type memCreds struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memCreds) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCreds) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// staleFirst hands out a bad token until Refresh is called.
type staleFirst struct {
	inner     services.IdentityService
	mu        sync.Mutex
	refreshed int
}

func (s *staleFirst) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshed == 0 {
		return "stale", nil
	}
	return s.inner.Token(ctx)
}

func (s *staleFirst) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.refreshed++
	s.mu.Unlock()
	return s.inner.Refresh(ctx)
}

type backend struct {
	url      string
	api      *client.HTTPClient
	identity services.IdentityService
	creds    *memCreds
}

func startBackend(t *testing.T, mutate func(*fakebackend.Config)) *backend {
	t.Helper()

	cfg := &fakebackend.Config{}
	cfg.LoadDefaults()
	if mutate != nil {
		mutate(cfg)
	}
	srv := httptest.NewServer(fakebackend.NewServer(cfg, fakebackend.NewState(cfg), logging.Nop()).Handler())
	t.Cleanup(srv.Close)

	api, err := client.NewHTTPClient(srv.URL, 5*time.Second, logging.Nop())
	require.NoError(t, err)

	creds := &memCreds{data: map[string]string{}}
	identity := services.NewIdentityService(api, creds, services.DefaultRetryPolicy, logging.Nop())
	api.SetTokenSource(identity)

	return &backend{url: srv.URL, api: api, identity: identity, creds: creds}
}

func TestClient_RegisterSearchAndPoll(t *testing.T) {
	ctx := context.Background()
	b := startBackend(t, nil)

	id, err := b.identity.Register(ctx)
	require.NoError(t, err)
	assert.True(t, id.Registered())

	taskID, err := b.api.CreateSearchTask(ctx, []byte("\x89PNG\r\n\x1a\n fake"))
	require.NoError(t, err)

	task := models.NewSearchTask(taskID, models.DefaultEngines, time.Now())
	for range len(models.DefaultEngines) {
		r, err := b.api.GetSearchStatus(ctx, taskID)
		require.NoError(t, err)
		task.Merge(r)
	}
	for _, e := range models.DefaultEngines {
		assert.Equal(t, models.StatusCompleted, task.Engines[e], e)
		assert.Contains(t, task.Links[e], taskID)
	}
}

func TestClient_RegisterIsStablePerDevice(t *testing.T) {
	ctx := context.Background()
	b := startBackend(t, nil)

	first, err := b.identity.Register(ctx)
	require.NoError(t, err)

	// a lost user id is recovered from the device id
	require.NoError(t, b.creds.Set(ctx, "user_id", ""))
	second, err := b.identity.Register(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.DeviceID, second.DeviceID)
	assert.Equal(t, first.UserID, second.UserID)
}

func TestClient_RefreshesRejectedToken(t *testing.T) {
	ctx := context.Background()
	b := startBackend(t, nil)
	_, err := b.identity.Register(ctx)
	require.NoError(t, err)

	ts := &staleFirst{inner: b.identity}
	b.api.SetTokenSource(ts)

	_, err = b.api.CreateSearchTask(ctx, []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 1, ts.refreshed)
}

func TestClient_ServerErrorsCarryCodes(t *testing.T) {
	ctx := context.Background()
	b := startBackend(t, nil)
	_, err := b.identity.Register(ctx)
	require.NoError(t, err)

	_, err = b.api.GetSearchStatus(ctx, "missing")
	require.ErrorIs(t, err, client.ErrServer)
	var se *client.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.StatusCode)
	assert.Equal(t, "task_not_found", se.Code)
}

func TestClient_NetworkUnavailable(t *testing.T) {
	api, err := client.NewHTTPClient("http://127.0.0.1:1", time.Second, logging.Nop())
	require.NoError(t, err)

	_, err = api.CreateUser(context.Background(), "dev")
	assert.ErrorIs(t, err, client.ErrNetworkUnavailable)
}

func TestBilling_PurchaseFlow(t *testing.T) {
	ctx := context.Background()
	b := startBackend(t, nil)
	_, err := b.identity.Register(ctx)
	require.NoError(t, err)

	provider, err := billing.NewHTTPProvider(b.url, 5*time.Second, logging.Nop())
	require.NoError(t, err)

	db, err := storage.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := entitlement.NewManager(provider, metadata.NewSQLiteRepository(db), b.identity, logging.Nop())
	require.NoError(t, m.Load(ctx))

	offers, err := m.RefreshCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	require.NoError(t, m.Refresh(ctx))
	assert.False(t, m.IsEntitled())

	require.NoError(t, m.Purchase(ctx, "year"))
	assert.True(t, m.IsEntitled())

	restored, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restored)
}

func TestBilling_DeclinedPurchase(t *testing.T) {
	ctx := context.Background()
	b := startBackend(t, func(c *fakebackend.Config) { c.Billing.FailPurchase = "payment_declined" })
	id, err := b.identity.Register(ctx)
	require.NoError(t, err)

	provider, err := billing.NewHTTPProvider(b.url, 5*time.Second, logging.Nop())
	require.NoError(t, err)

	err = provider.Purchase(ctx, id.UserID, "pro.week")
	var pe *billing.PurchaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, billing.ReasonPaymentDeclined, pe.Reason)

	subscribed, err := provider.Status(ctx, id.UserID)
	require.NoError(t, err)
	assert.False(t, subscribed)
}
