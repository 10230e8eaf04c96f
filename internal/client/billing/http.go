package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dmitrijs2005/revsearch/internal/client/client"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

type productsResponse struct {
	Offers []models.Offer `json:"offers" validate:"dive"`
}

type userRequest struct {
	UserID  string `json:"user_id"`
	OfferID string `json:"offer_id,omitempty"`
}

type subscriptionResponse struct {
	Subscribed bool `json:"subscribed"`
}

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPProvider implements Provider against the billing routes.
type HTTPProvider struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	log      logging.Logger
	validate *validator.Validate
}

func NewHTTPProvider(baseURL string, timeout time.Duration, log logging.Logger) (*HTTPProvider, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid billing url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = client.DefaultRequestTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &HTTPProvider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeout:  timeout,
		log:      log.With("component", "billing"),
		validate: validator.New(),
	}, nil
}

func (p *HTTPProvider) Products(ctx context.Context) ([]models.Offer, error) {
	var out productsResponse
	if err := p.do(ctx, http.MethodGet, "/v1/billing/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Offers, nil
}

func (p *HTTPProvider) Purchase(ctx context.Context, userID, offerID string) error {
	var out subscriptionResponse
	err := p.do(ctx, http.MethodPost, "/v1/billing/purchase", userRequest{UserID: userID, OfferID: offerID}, &out)
	if err != nil {
		return err
	}
	if !out.Subscribed {
		return &PurchaseError{Reason: ReasonUnknown}
	}
	return nil
}

func (p *HTTPProvider) Restore(ctx context.Context, userID string) (bool, error) {
	var out subscriptionResponse
	if err := p.do(ctx, http.MethodPost, "/v1/billing/restore", userRequest{UserID: userID}, &out); err != nil {
		return false, err
	}
	return out.Subscribed, nil
}

func (p *HTTPProvider) Status(ctx context.Context, userID string) (bool, error) {
	var out subscriptionResponse
	path := "/v1/billing/status?user_id=" + url.QueryEscape(userID)
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Subscribed, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, in, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode json")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, p.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn(ctx, "billing request failed", "path", path, "error", err)
		return errors.Wrapf(client.ErrNetworkUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(client.ErrNetworkUnavailable, "read %s: %v", path, err)
	}

	if resp.StatusCode/100 != 2 {
		var env errorEnvelope
		_ = json.Unmarshal(raw, &env)
		if path == "/v1/billing/purchase" && resp.StatusCode < 500 && env.Error != nil {
			return &PurchaseError{Reason: ParseReason(env.Error.Code), Err: errors.New(env.Error.Message)}
		}
		se := &client.ServerError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			se.Code, se.Message = env.Error.Code, env.Error.Message
		}
		return se
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(client.ErrServer, "decode %s: %v", path, err)
	}
	if err := p.validate.Struct(out); err != nil {
		return errors.Wrapf(client.ErrServer, "invalid %s response: %v", path, err)
	}
	return nil
}
