// Package services contains application services of the revsearch client.
// This file defines the identity service: device id, registration with the
// backend and session token upkeep.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/revsearch/internal/client/client"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

var ErrNotRegistered = errors.New("device is not registered")

// CredentialStore is the subset of the credential store used here.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Registrar is the subset of the backend client used for registration.
type Registrar interface {
	CreateUser(ctx context.Context, deviceID string) (string, error)
	Authorize(ctx context.Context, userID string) (string, error)
}

// IdentityService owns the device identity and the session token.
//
// Contract:
//   - EnsureDeviceID: generate the device id once, return the stored one after.
//   - Register: create the backend user if needed, then authorize.
//   - Token: current session token, re-authorized when its JWT expiry passed.
//   - Refresh: unconditionally obtain and store a new session token.
//   - UserID: stored user id, ErrNotRegistered if none.
type IdentityService interface {
	EnsureDeviceID(ctx context.Context) (string, error)
	Register(ctx context.Context) (models.Identity, error)
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
}

// RetryPolicy bounds the network retries of registration calls.
type RetryPolicy struct {
	Base       time.Duration
	MaxRetries uint64
}

var DefaultRetryPolicy = RetryPolicy{Base: 200 * time.Millisecond, MaxRetries: 4}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.Base)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

type identityService struct {
	api    Registrar
	store  CredentialStore
	log    logging.Logger
	policy RetryPolicy
	now    func() time.Time

	// serializes registration and token refresh so concurrent 401s
	// trigger a single authorize call
	mu sync.Mutex
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(api Registrar, store CredentialStore, policy RetryPolicy, log logging.Logger) IdentityService {
	if log == nil {
		log = logging.Nop()
	}
	return &identityService{
		api:    api,
		store:  store,
		log:    log.With("component", "identity"),
		policy: policy,
		now:    time.Now,
	}
}

func (s *identityService) EnsureDeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureDeviceID(ctx)
}

func (s *identityService) ensureDeviceID(ctx context.Context) (string, error) {
	id, ok, err := s.store.Get(ctx, common.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.store.Set(ctx, common.KeyDeviceID, id); err != nil {
		return "", err
	}
	s.log.Info(ctx, "device id generated", "device_id", id)
	return id, nil
}

func (s *identityService) Register(ctx context.Context) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.register(ctx)
}

func (s *identityService) register(ctx context.Context) (models.Identity, error) {
	deviceID, err := s.ensureDeviceID(ctx)
	if err != nil {
		return models.Identity{}, err
	}

	userID, ok, err := s.store.Get(ctx, common.KeyUserID)
	if err != nil {
		return models.Identity{}, err
	}
	if !ok || userID == "" {
		err = s.withRetry(ctx, func(ctx context.Context) error {
			var err error
			userID, err = s.api.CreateUser(ctx, deviceID)
			return err
		})
		if err != nil {
			return models.Identity{}, fmt.Errorf("create user: %w", err)
		}
		if err := s.store.Set(ctx, common.KeyUserID, userID); err != nil {
			return models.Identity{}, err
		}
		s.log.Info(ctx, "user created", "user_id", userID)
	}

	token, err := s.authorize(ctx, userID)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{DeviceID: deviceID, UserID: userID, SessionToken: token}, nil
}

func (s *identityService) authorize(ctx context.Context, userID string) (string, error) {
	var token string
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		token, err = s.api.Authorize(ctx, userID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	if err := s.store.Set(ctx, common.KeySessionToken, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *identityService) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok, err := s.store.Get(ctx, common.KeySessionToken)
	if err != nil {
		return "", err
	}
	if !ok || token == "" {
		id, err := s.register(ctx)
		if err != nil {
			return "", err
		}
		return id.SessionToken, nil
	}

	if s.expired(token) {
		s.log.Debug(ctx, "session token expired, re-authorizing")
		userID, err := s.userID(ctx)
		if err != nil {
			return "", err
		}
		return s.authorize(ctx, userID)
	}
	return token, nil
}

func (s *identityService) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, err := s.userID(ctx)
	if err != nil {
		return "", err
	}
	return s.authorize(ctx, userID)
}

func (s *identityService) UserID(ctx context.Context) (string, error) {
	return s.userID(ctx)
}

func (s *identityService) userID(ctx context.Context) (string, error) {
	userID, ok, err := s.store.Get(ctx, common.KeyUserID)
	if err != nil {
		return "", err
	}
	if !ok || userID == "" {
		return "", ErrNotRegistered
	}
	return userID, nil
}

// expired reads the exp claim without verifying the signature; the backend
// remains the authority. Tokens that are not JWTs never expire here.
func (s *identityService) expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !s.now().Before(exp.Time)
}

// withRetry retries fn on network failures only.
func (s *identityService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, s.policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && client.IsRetryable(err) {
			s.log.Debug(ctx, "registration call failed, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
