// Package client talks to the reverse image search backend.
//
// # Overview
//
// Client is the transport-agnostic contract: CreateUser, Authorize,
// CreateSearchTask and GetSearchStatus. HTTPClient implements it over
// HTTP/JSON. Each request carries its own timeout, the session token is
// attached from a TokenSource, and a 401 answer triggers one token refresh
// followed by one retry.
//
// # Error Handling
//
// Transport failures and timeouts map to ErrNetworkUnavailable, 401/403 to
// ErrUnauthorized, any other non-2xx answer to *ServerError (matching
// ErrServer). Responses that fail schema or struct validation also match
// ErrServer.
//
// CreateSearchTask is never retried on network or server errors, so one
// logical search issues at most one task.
package client
