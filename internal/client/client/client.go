package client

import (
	"context"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

// Client is the remote search backend. Every operation except
// CreateSearchTask is safe to retry on ErrNetworkUnavailable.
type Client interface {
	CreateUser(ctx context.Context, deviceID string) (string, error)
	Authorize(ctx context.Context, userID string) (string, error)
	CreateSearchTask(ctx context.Context, image []byte) (string, error)
	GetSearchStatus(ctx context.Context, taskID string) (*models.StatusReport, error)
}

// TokenSource supplies session tokens for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}
