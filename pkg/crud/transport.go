// Package crud talks to the backend's resource endpoints.
//
// A Transport carries the base URL, codec and session credential shared by
// every resource. Client[T] binds it to one resource path; VersionedClient[T]
// adds the endpoints of version-aware resources.
package crud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cesarabad/muffinmanager/pkg/codec"
	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/logger"
	"github.com/cesarabad/muffinmanager/pkg/session"
)

type Config struct {
	// BaseURL is the API root, resource paths are appended to it.
	BaseURL    string
	HTTPClient *http.Client
	Codec      codec.Codec
	// Credentials supplies the bearer token. Calls go out unauthenticated
	// when it is nil or has no credential.
	Credentials session.CredentialSource
	Logger      logger.Logger
	Metrics     *Metrics
}

type Transport struct {
	baseURL     string
	httpClient  *http.Client
	codec       codec.Codec
	credentials session.CredentialSource
	logger      logger.Logger
	metrics     *Metrics
}

func NewTransport(cfg Config) (*Transport, error) {
	if cfg.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("crud: invalid base url: %w", err)
	}

	t := &Transport{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  cfg.HTTPClient,
		codec:       cfg.Codec,
		credentials: cfg.Credentials,
		logger:      logger.OrNop(cfg.Logger),
		metrics:     cfg.Metrics,
	}
	if t.httpClient == nil {
		t.httpClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	if t.codec == nil {
		t.codec = codec.JSON()
	}
	return t, nil
}

// request describes one call relative to a resource.
type request struct {
	resource string
	op       string
	method   string
	path     string
	query    url.Values
	body     any
}

func (r request) fullPath() string {
	p := "/" + r.resource + r.path
	if len(r.query) > 0 {
		p += "?" + r.query.Encode()
	}
	return p
}

// do sends req and decodes a non-empty response body into out when out is non-nil.
func (t *Transport) do(ctx context.Context, req request, out any) error {
	start := time.Now()
	status, err := t.roundTrip(ctx, req, out)
	t.metrics.observe(req.resource, req.op, status, time.Since(start))
	if err != nil {
		t.logger.Warn("crud call failed", "resource", req.resource, "op", req.op, "status", status, "error", err)
		return err
	}
	t.logger.Debug("crud call", "resource", req.resource, "op", req.op, "status", status)
	return nil
}

func (t *Transport) roundTrip(ctx context.Context, req request, out any) (int, error) {
	path := req.fullPath()
	fail := func(status int, msg string, err error) (int, error) {
		return status, &TransportError{
			Op:         req.op,
			Method:     req.method,
			Path:       path,
			StatusCode: status,
			Message:    msg,
			Err:        err,
		}
	}

	var body io.Reader = http.NoBody
	if req.body != nil {
		data, err := t.codec.Marshal(req.body)
		if err != nil {
			return fail(0, GenericMessage, fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, t.baseURL+path, body)
	if err != nil {
		return fail(0, GenericMessage, err)
	}
	httpReq.Header.Set("Accept", t.codec.ContentType())
	if req.body != nil {
		httpReq.Header.Set("Content-Type", t.codec.ContentType())
	}
	if t.credentials != nil {
		if token, ok := t.credentials.Credential(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fail(0, NetworkMessage, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, NetworkMessage, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(resp.StatusCode, errorMessage(respBytes, t.codec), nil)
	}

	if out != nil && len(respBytes) > 0 {
		if err := t.codec.Unmarshal(respBytes, out); err != nil {
			return fail(resp.StatusCode, GenericMessage, fmt.Errorf("decode body: %w", err))
		}
	}
	return resp.StatusCode, nil
}
