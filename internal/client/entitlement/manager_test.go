package entitlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/revsearch/internal/client/billing"
	"github.com/dmitrijs2005/revsearch/internal/client/client"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

type fakeProvider struct {
	mu sync.Mutex

	offers      []models.Offer
	productsErr error

	purchaseErr   error
	lastPurchased string

	restore    bool
	restoreErr error

	status      bool
	statusErr   error
	statusCalls atomic.Int32

	// statusStarted and statusGate, when set, let a test hold a status
	// check in flight.
	statusStarted chan struct{}
	statusGate    chan struct{}
}

func (f *fakeProvider) Products(context.Context) ([]models.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers, f.productsErr
}

func (f *fakeProvider) Purchase(_ context.Context, _, offerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPurchased = offerID
	return f.purchaseErr
}

func (f *fakeProvider) Restore(context.Context, string) (bool, error) {
	return f.restore, f.restoreErr
}

func (f *fakeProvider) Status(context.Context, string) (bool, error) {
	f.statusCalls.Add(1)
	if f.statusStarted != nil {
		f.statusStarted <- struct{}{}
	}
	if f.statusGate != nil {
		<-f.statusGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

type memMeta struct {
	mu     sync.Mutex
	data   map[string][]byte
	setErr error
}

func newMemMeta() *memMeta { return &memMeta{data: map[string][]byte{}} }

func (m *memMeta) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memMeta) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

type fixedUser struct {
	id  string
	err error
}

func (u fixedUser) UserID(context.Context) (string, error) { return u.id, u.err }

var catalog = []models.Offer{
	{ID: "pro.week", DisplayPrice: "$6.99", Price: 6.99, Period: models.PeriodWeek},
	{ID: "pro.year", DisplayPrice: "$54.99", Price: 54.99, Period: models.PeriodYear},
}

func newManager(p *fakeProvider, meta *memMeta) *Manager {
	return NewManager(p, meta, fixedUser{id: "u1"}, nil)
}

func TestManager_StartsUnknownAndNotEntitled(t *testing.T) {
	m := newManager(&fakeProvider{}, newMemMeta())
	require.NoError(t, m.Load(context.Background()))

	assert.Equal(t, StateUnknown, m.State())
	assert.False(t, m.IsEntitled())
	assert.True(t, m.CheckedAt().IsZero())
}

func TestRefreshCatalog_KeepsStaleOffersOnFailure(t *testing.T) {
	p := &fakeProvider{offers: catalog}
	m := newManager(p, newMemMeta())
	ctx := context.Background()

	got, err := m.RefreshCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog, got)

	p.productsErr = client.ErrNetworkUnavailable
	got, err = m.RefreshCatalog(ctx)
	require.ErrorIs(t, err, client.ErrNetworkUnavailable)
	assert.Equal(t, catalog, got, "stale catalog must be returned")
	assert.Equal(t, catalog, m.Offers())
}

func TestRefreshCatalog_FirstFailureYieldsEmpty(t *testing.T) {
	m := newManager(&fakeProvider{productsErr: errors.New("down")}, newMemMeta())

	got, err := m.RefreshCatalog(context.Background())
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestPurchase_SuccessSubscribesAndPersists(t *testing.T) {
	p := &fakeProvider{offers: catalog}
	meta := newMemMeta()
	m := newManager(p, meta)
	ctx := context.Background()
	_, err := m.RefreshCatalog(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Purchase(ctx, "year"))
	assert.Equal(t, "pro.year", p.lastPurchased, "period names resolve to offer ids")
	assert.True(t, m.IsEntitled())

	restarted := newManager(&fakeProvider{}, meta)
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, StateSubscribed, restarted.State())
	assert.Equal(t, catalog, restarted.Offers())
}

func TestPurchase_FailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want billing.FailureReason
	}{
		{"cancelled", &billing.PurchaseError{Reason: billing.ReasonUserCancelled}, billing.ReasonUserCancelled},
		{"declined", &billing.PurchaseError{Reason: billing.ReasonPaymentDeclined}, billing.ReasonPaymentDeclined},
		{"network", client.ErrNetworkUnavailable, billing.ReasonUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProvider{purchaseErr: tc.err, status: false}
			m := newManager(p, newMemMeta())
			ctx := context.Background()
			require.NoError(t, m.Refresh(ctx))
			require.Equal(t, StateNotSubscribed, m.State())

			err := m.Purchase(ctx, "pro.week")
			var pe *PurchaseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.want, pe.Reason)
			assert.Equal(t, StateNotSubscribed, m.State())
			assert.False(t, m.IsEntitled())
		})
	}
}

func TestPurchase_UnknownOfferWithCatalog(t *testing.T) {
	p := &fakeProvider{offers: catalog}
	m := newManager(p, newMemMeta())
	_, err := m.RefreshCatalog(context.Background())
	require.NoError(t, err)

	err = m.Purchase(context.Background(), "pro.month")
	require.ErrorIs(t, err, ErrUnknownOffer)
	assert.Empty(t, p.lastPurchased, "provider must not be called")
}

func TestPurchase_NoUserIsPurchaseError(t *testing.T) {
	m := NewManager(&fakeProvider{}, newMemMeta(), fixedUser{err: errors.New("not registered")}, nil)

	err := m.Purchase(context.Background(), "pro.week")
	var pe *PurchaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, billing.ReasonUnknown, pe.Reason)
}

func TestRestore(t *testing.T) {
	p := &fakeProvider{restore: true}
	m := newManager(p, newMemMeta())
	ctx := context.Background()

	ok, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.IsEntitled())

	p.restore = false
	ok, err = m.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateNotSubscribed, m.State())

	p.restoreErr = errors.New("store down")
	_, err = m.Restore(ctx)
	require.Error(t, err)
	assert.Equal(t, StateNotSubscribed, m.State())
}

func TestRefresh_FailureKeepsCachedState(t *testing.T) {
	p := &fakeProvider{status: true}
	m := newManager(p, newMemMeta())
	ctx := context.Background()

	require.NoError(t, m.Refresh(ctx))
	require.True(t, m.IsEntitled())

	p.mu.Lock()
	p.statusErr = client.ErrNetworkUnavailable
	p.mu.Unlock()

	require.Error(t, m.Refresh(ctx))
	assert.True(t, m.IsEntitled(), "never flip without confirmation")
}

func TestRefresh_StartedBeforePurchaseDoesNotOverwriteIt(t *testing.T) {
	p := &fakeProvider{
		status:        false,
		statusStarted: make(chan struct{}),
		statusGate:    make(chan struct{}),
	}
	meta := newMemMeta()
	m := newManager(p, meta)
	ctx := context.Background()

	refreshed := make(chan error, 1)
	go func() { refreshed <- m.Refresh(ctx) }()
	<-p.statusStarted

	require.NoError(t, m.Purchase(ctx, "pro.week"))
	require.Equal(t, StateSubscribed, m.State())

	close(p.statusGate)
	require.NoError(t, <-refreshed)
	assert.Equal(t, StateSubscribed, m.State())
	assert.True(t, m.IsEntitled())

	restarted := newManager(&fakeProvider{}, meta)
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, StateSubscribed, restarted.State())
}

func TestRefresh_StartedAfterPurchaseIsApplied(t *testing.T) {
	p := &fakeProvider{}
	m := newManager(p, newMemMeta())
	ctx := context.Background()

	require.NoError(t, m.Purchase(ctx, "pro.week"))
	require.True(t, m.IsEntitled())

	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, StateNotSubscribed, m.State())
}

func TestConfirm_PersistFailureStillUpdatesMemory(t *testing.T) {
	meta := newMemMeta()
	meta.setErr = errors.New("disk full")
	m := newManager(&fakeProvider{status: true}, meta)

	require.NoError(t, m.Refresh(context.Background()))
	assert.True(t, m.IsEntitled())
}

func TestLoad_CorruptStateIsError(t *testing.T) {
	meta := newMemMeta()
	meta.data[stateMetadataKey] = []byte("garbage")
	m := newManager(&fakeProvider{}, meta)

	require.Error(t, m.Load(context.Background()))
	assert.Equal(t, StateUnknown, m.State())
}

func TestWatch_RefreshesUntilCancelled(t *testing.T) {
	p := &fakeProvider{status: true}
	m := newManager(p, newMemMeta())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.statusCalls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.True(t, m.IsEntitled())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestIsEntitled_ConcurrentWithRefresh(t *testing.T) {
	p := &fakeProvider{status: true}
	m := newManager(p, newMemMeta())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = m.Refresh(ctx) }()
		go func() { defer wg.Done(); _ = m.IsEntitled() }()
	}
	wg.Wait()
	assert.True(t, m.IsEntitled())
}
