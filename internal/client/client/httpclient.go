package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/common"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

const (
	DefaultRequestTimeout = 15 * time.Second

	maxResponseBytes = 1 << 20
	imageFieldName   = "image"
)

type createUserRequest struct {
	DeviceID string `json:"device_id"`
}

type createUserResponse struct {
	UserID string `json:"user_id" validate:"required"`
}

type authorizeRequest struct {
	UserID string `json:"user_id"`
}

type authorizeResponse struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id" validate:"required"`
}

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient implements Client over the backend's HTTP/JSON API.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	log      logging.Logger
	validate *validator.Validate
	status   *jsonschema.Schema

	mu     sync.RWMutex
	tokens TokenSource
}

// Option customises an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithTokenSource sets the source of session tokens.
func WithTokenSource(ts TokenSource) Option {
	return func(c *HTTPClient) { c.tokens = ts }
}

// NewHTTPClient returns a client for baseURL. timeout bounds every single
// request; zero means DefaultRequestTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger, opts ...Option) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = logging.Nop()
	}

	schema, err := compileStatusSchema()
	if err != nil {
		return nil, err
	}

	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeout:  timeout,
		log:      log.With("component", "search_client"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		status:   schema,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// SetTokenSource installs ts after construction. The identity service
// depends on the client, so the two are wired in this order.
func (c *HTTPClient) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *HTTPClient) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *HTTPClient) CreateUser(ctx context.Context, deviceID string) (string, error) {
	var out createUserResponse
	if err := c.postJSON(ctx, "/v1/users", createUserRequest{DeviceID: deviceID}, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *HTTPClient) Authorize(ctx context.Context, userID string) (string, error) {
	var out authorizeResponse
	if err := c.postJSON(ctx, "/v1/auth", authorizeRequest{UserID: userID}, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// CreateSearchTask uploads image and returns the new task id. Network and
// server errors are not retried. A 401 is the one exception: the rejected
// POST created no task, so it is resent once with a refreshed token.
func (c *HTTPClient) CreateSearchTask(ctx context.Context, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(imageFieldName, "image")
	if err != nil {
		return "", errors.Wrap(err, "build multipart body")
	}
	if _, err := fw.Write(image); err != nil {
		return "", errors.Wrap(err, "build multipart body")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "build multipart body")
	}

	raw, err := c.call(ctx, http.MethodPost, "/v1/search", buf.Bytes(), mw.FormDataContentType(), true)
	if err != nil {
		return "", err
	}

	var out createTaskResponse
	if err := c.decode(raw, &out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

func (c *HTTPClient) GetSearchStatus(ctx context.Context, taskID string) (*models.StatusReport, error) {
	raw, err := c.call(ctx, http.MethodGet, "/v1/search/"+url.PathEscape(taskID), nil, "", true)
	if err != nil {
		return nil, err
	}

	if err := validateAgainst(c.status, raw); err != nil {
		return nil, fmt.Errorf("%w: malformed status response: %v", ErrServer, err)
	}

	var out models.StatusReport
	if err := c.decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode json")
	}
	raw, err := c.call(ctx, http.MethodPost, path, body, "application/json", false)
	if err != nil {
		return err
	}
	return c.decode(raw, out)
}

func (c *HTTPClient) decode(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrServer, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrServer, err)
	}
	return nil
}

// call sends one request. Authenticated calls answered with 401 get exactly
// one token refresh and one retry; nothing else is retried here.
func (c *HTTPClient) call(ctx context.Context, method, path string, body []byte, contentType string, auth bool) ([]byte, error) {
	var (
		ts    TokenSource
		token string
		err   error
	)
	if auth {
		ts = c.tokenSource()
		if ts == nil {
			return nil, ErrUnauthorized
		}
		if token, err = ts.Token(ctx); err != nil {
			return nil, err
		}
	}

	raw, status, err := c.send(ctx, method, path, body, contentType, token)
	if err != nil {
		return nil, err
	}

	if auth && status == http.StatusUnauthorized {
		c.log.Info(ctx, "session rejected, refreshing token", "path", path)
		if token, err = ts.Refresh(ctx); err != nil {
			return nil, err
		}
		raw, status, err = c.send(ctx, method, path, body, contentType, token)
		if err != nil {
			return nil, err
		}
	}

	if err := mapStatus(status, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body []byte, contentType, token string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqID := uuid.NewString()
	start := time.Now()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, 0, errors.Wrap(err, "build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}

	c.log.Debug(ctx, "http request", "req_id", reqID, "method", method, "path", path, "content_length", len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn(ctx, "http send failed", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		// a caller-side cancellation is not a network problem
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, errors.Wrapf(ErrNetworkUnavailable, "%s %s: %v", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn(ctx, "http response body close failed", "req_id", reqID, "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, errors.Wrapf(ErrNetworkUnavailable, "read %s %s: %v", method, path, err)
	}

	c.log.Debug(ctx, "http response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return raw, resp.StatusCode, nil
}

func mapStatus(status int, raw []byte) error {
	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	}

	se := &ServerError{StatusCode: status}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		se.Code = env.Error.Code
		se.Message = env.Error.Message
	}
	return se
}
