// Package entitlement tracks whether the user holds an active subscription
// and gates the search feature on it.
//
// IsEntitled reads a cached flag and never blocks on I/O. The flag only
// changes after the billing provider confirms a purchase, a restore or a
// status check, and the last confirmed value is persisted so a restart
// begins from it.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/revsearch/internal/client/billing"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// State is the cached subscription state.
type State string

const (
	StateUnknown       State = "unknown"
	StateNotSubscribed State = "not_subscribed"
	StateSubscribed    State = "subscribed"
)

// PurchaseError is returned by Manager.Purchase.
type PurchaseError = billing.PurchaseError

var ErrUnknownOffer = errors.New("unknown offer")

const (
	stateMetadataKey   = "entitlement.state"
	catalogMetadataKey = "entitlement.catalog"
)

// UserIDSource resolves the backend user the subscription belongs to.
type UserIDSource interface {
	UserID(ctx context.Context) (string, error)
}

type persistedState struct {
	State     State     `json:"state"`
	CheckedAt time.Time `json:"checked_at"`
}

// Manager is safe for concurrent use.
type Manager struct {
	provider billing.Provider
	meta     metadata.Repository
	users    UserIDSource
	log      logging.Logger
	now      func() time.Time

	// persistMu orders state writes to metadata with their in-memory
	// updates.
	persistMu sync.Mutex

	mu        sync.RWMutex
	state     State
	checkedAt time.Time
	offers    []models.Offer
	// seq numbers status checks and confirmations. confirmed is the seq of
	// the newest result applied; older results are dropped.
	seq       uint64
	confirmed uint64
}

// NewManager returns a manager in StateUnknown. Call Load to restore the
// last confirmed state.
func NewManager(provider billing.Provider, meta metadata.Repository, users UserIDSource, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		provider: provider,
		meta:     meta,
		users:    users,
		log:      log.With("component", "entitlement"),
		now:      time.Now,
		state:    StateUnknown,
	}
}

// Load restores the persisted state and catalog.
func (m *Manager) Load(ctx context.Context) error {
	var ps persistedState
	okState, err := metadata.GetJSON(ctx, m.meta, stateMetadataKey, &ps)
	if err != nil {
		return fmt.Errorf("load entitlement state: %w", err)
	}
	var offers []models.Offer
	okCatalog, err := metadata.GetJSON(ctx, m.meta, catalogMetadataKey, &offers)
	if err != nil {
		return fmt.Errorf("load offer catalog: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if okState {
		m.state, m.checkedAt = ps.State, ps.CheckedAt
	}
	if okCatalog {
		m.offers = offers
	}
	return nil
}

// IsEntitled reports whether a search may start.
func (m *Manager) IsEntitled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateSubscribed
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CheckedAt is when the state was last confirmed by the provider.
func (m *Manager) CheckedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkedAt
}

// Offers returns the cached catalog.
func (m *Manager) Offers() []models.Offer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.offers)
}

// RefreshCatalog fetches the offers. On failure the cached catalog is left
// untouched and returned together with the error.
func (m *Manager) RefreshCatalog(ctx context.Context) ([]models.Offer, error) {
	offers, err := m.provider.Products(ctx)
	if err != nil {
		m.log.Warn(ctx, "catalog refresh failed, keeping cached offers", "error", err)
		return m.Offers(), fmt.Errorf("refresh catalog: %w", err)
	}

	m.mu.Lock()
	m.offers = slices.Clone(offers)
	m.mu.Unlock()

	if err := metadata.SetJSON(ctx, m.meta, catalogMetadataKey, offers); err != nil {
		m.log.Warn(ctx, "failed to persist offer catalog", "error", err)
	}
	return slices.Clone(offers), nil
}

// Purchase buys offerID, which may also name a period (week, year) of a
// cached offer. Failures leave the state unchanged and come back
// as *PurchaseError.
func (m *Manager) Purchase(ctx context.Context, offerID string) error {
	if offers := m.Offers(); len(offers) > 0 {
		o, ok := FindOffer(offers, offerID)
		if !ok {
			return &PurchaseError{Reason: billing.ReasonUnknown, Err: fmt.Errorf("%w: %s", ErrUnknownOffer, offerID)}
		}
		offerID = o.ID
	}

	userID, err := m.users.UserID(ctx)
	if err != nil {
		return &PurchaseError{Reason: billing.ReasonUnknown, Err: err}
	}

	if err := m.provider.Purchase(ctx, userID, offerID); err != nil {
		var pe *PurchaseError
		if errors.As(err, &pe) {
			m.log.Info(ctx, "purchase declined", "offer", offerID, "reason", pe.Reason)
			return pe
		}
		m.log.Warn(ctx, "purchase failed", "offer", offerID, "error", err)
		return &PurchaseError{Reason: billing.ReasonUnknown, Err: err}
	}

	m.log.Info(ctx, "purchase confirmed", "offer", offerID)
	m.confirm(ctx, true, m.nextSeq())
	return nil
}

// Restore re-derives the state from the provider's purchase record.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	userID, err := m.users.UserID(ctx)
	if err != nil {
		return false, fmt.Errorf("restore: %w", err)
	}
	seq := m.nextSeq()
	subscribed, err := m.provider.Restore(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("restore: %w", err)
	}
	m.confirm(ctx, subscribed, seq)
	return subscribed, nil
}

// Refresh checks the subscription status. The cached state is kept on
// failure.
func (m *Manager) Refresh(ctx context.Context) error {
	userID, err := m.users.UserID(ctx)
	if err != nil {
		return fmt.Errorf("refresh entitlement: %w", err)
	}
	seq := m.nextSeq()
	subscribed, err := m.provider.Status(ctx, userID)
	if err != nil {
		return fmt.Errorf("refresh entitlement: %w", err)
	}
	m.confirm(ctx, subscribed, seq)
	return nil
}

// Watch calls Refresh every interval until ctx is done. Each check gets
// at most one interval to finish.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			if err := m.Refresh(checkCtx); err != nil {
				m.log.Debug(ctx, "background entitlement check failed", "error", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) nextSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

// confirm applies a provider answer obtained under seq. An answer from a
// check that started before the last applied confirmation is stale and
// dropped.
func (m *Manager) confirm(ctx context.Context, subscribed bool, seq uint64) {
	next := StateNotSubscribed
	if subscribed {
		next = StateSubscribed
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if last := m.confirmed; seq < last {
		m.mu.Unlock()
		m.log.Debug(ctx, "dropping stale entitlement result", "seq", seq, "confirmed", last)
		return
	}
	prev := m.state
	m.confirmed = seq
	m.state = next
	m.checkedAt = m.now()
	ps := persistedState{State: m.state, CheckedAt: m.checkedAt}
	m.mu.Unlock()

	if prev != next {
		m.log.Info(ctx, "entitlement changed", "from", prev, "to", next)
	}
	if err := metadata.SetJSON(ctx, m.meta, stateMetadataKey, ps); err != nil {
		m.log.Warn(ctx, "failed to persist entitlement state", "error", err)
	}
}
