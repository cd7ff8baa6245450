package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CallOptions carries per-request options for a [Transport] call.
type CallOptions struct {
	Headers map[string]string
}

// Transport abstracts the HTTP surface of the session authority. All engine
// requests go through it, and it is the single place where responses are
// classified into [RequestError] values. Context cancellation is never
// classified; it surfaces as the raw context error.
type Transport interface {
	Get(ctx context.Context, path string, opts CallOptions, out any) error
	Post(ctx context.Context, path string, body any, opts CallOptions, out any) error
}

// HTTPTransport is the default [Transport] backed by net/http.
type HTTPTransport struct {
	base      *url.URL
	client    *http.Client
	userAgent string
}

// errorPayload is the authority's wire shape for failed requests.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTPTransport creates an [HTTPTransport] for the given API config. A nil
// client gets a default with a 30-second timeout.
func NewHTTPTransport(cfg APIConfig, client *http.Client) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api base url required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{
		base:      base,
		client:    client,
		userAgent: cfg.UserAgent,
	}, nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (t *HTTPTransport) Get(ctx context.Context, path string, opts CallOptions, out any) error {
	return t.do(ctx, http.MethodGet, path, nil, opts, out)
}

// Post describes the post operation and its observable behavior.
//
// Post may return an error when input validation, dependency calls, or security checks fail.
func (t *HTTPTransport) Post(ctx context.Context, path string, body any, opts CallOptions, out any) error {
	return t.do(ctx, http.MethodPost, path, body, opts, out)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body any, opts CallOptions, out any) error {
	target := t.base.JoinPath(strings.Split(strings.Trim(path, "/"), "/")...)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &RequestError{
			Kind:    KindUnavailable,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{
			Kind:    KindInternalServerError,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("decode response body: %v", err),
		}
	}
	return nil
}

func classifyResponse(resp *http.Response) error {
	reqErr := &RequestError{
		Kind:   KindFromStatus(resp.StatusCode),
		Status: resp.StatusCode,
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		reqErr.Message = http.StatusText(resp.StatusCode)
		return reqErr
	}

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Code == "" && payload.Message == "" {
		reqErr.Message = strings.TrimSpace(string(raw))
		return reqErr
	}

	reqErr.Code = payload.Code
	reqErr.Message = payload.Message
	return reqErr
}
