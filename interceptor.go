package goSession

import (
	"context"
	"errors"
	"log"
)

// Interceptor wraps a [Transport] so that every outbound call carries a
// bearer token for the active session and unauthorized responses are retried
// once with a forced refresh. Callers outside the engine use it as a drop-in
// Transport.
type Interceptor struct {
	client *Client
	next   Transport
}

// NewInterceptor describes the newinterceptor operation and its observable behavior.
//
// NewInterceptor may return an error when input validation, dependency calls, or security checks fail.
func NewInterceptor(client *Client, next Transport) (*Interceptor, error) {
	if client == nil {
		return nil, errors.New("client required")
	}
	if next == nil {
		return nil, errors.New("transport required")
	}
	return &Interceptor{client: client, next: next}, nil
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (i *Interceptor) Get(ctx context.Context, path string, opts CallOptions, out any) error {
	return i.intercept(ctx, func(o CallOptions) error {
		return i.next.Get(ctx, path, o, out)
	}, opts)
}

// Post describes the post operation and its observable behavior.
//
// Post may return an error when input validation, dependency calls, or security checks fail.
func (i *Interceptor) Post(ctx context.Context, path string, body any, opts CallOptions, out any) error {
	return i.intercept(ctx, func(o CallOptions) error {
		return i.next.Post(ctx, path, body, o, out)
	}, opts)
}

func (i *Interceptor) intercept(ctx context.Context, call func(CallOptions) error, opts CallOptions) error {
	token, err := i.client.GetToken(ctx)
	if err != nil {
		// A forbidden token fetch means local state can no longer resolve
		// tokens at all; drop it before propagating.
		if IsKind(err, KindNotAllowed) {
			i.signOut(ctx)
		}
		return err
	}

	err = call(withBearer(opts, token))
	if err == nil || !IsKind(err, KindUnauthorized) {
		return err
	}

	token, err = i.client.ForceToken(ctx)
	if err != nil {
		return err
	}

	err = call(withBearer(opts, token))
	if err != nil && IsKind(err, KindUnauthorized) {
		i.client.metrics.Inc(MetricTokenRetryExhausted)
		i.signOut(ctx)
		return ErrSessionExpired
	}
	return err
}

func (i *Interceptor) signOut(ctx context.Context) {
	if err := i.client.SignOut(ctx); err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Printf("goSession: interceptor sign-out: %v", err)
	}
}

func withBearer(opts CallOptions, token string) CallOptions {
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	opts.Headers = headers
	return opts
}
