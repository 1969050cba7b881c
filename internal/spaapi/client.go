// Package spaapi is the HTTP client for the spa REST backend. Every call from
// the web tier goes through Client, which enforces the per-attempt timeout,
// retries cold-start and network failures, and reports 401 responses to a
// single hook.
package spaapi

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/spa-turnos/pkg/logging"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryStep  = 4 * time.Second

	maxErrorBody = 300
)

var spaapiTracer = otel.Tracer("spa.internal.spaapi")

// Observer receives per-request metrics. Implementations must be nil-safe.
type Observer interface {
	ObserveRequest(endpoint, outcome string, d time.Duration)
	ObserveRetry(endpoint, reason string)
}

// RetryEvent describes a retry about to happen.
type RetryEvent struct {
	Endpoint string
	Attempt  int
	Delay    time.Duration
	Reason   string
}

// Message is the transient status line shown while the client waits.
func (e RetryEvent) Message() string {
	if e.Reason == reasonColdStart {
		return fmt.Sprintf("El servidor se está iniciando, reintentando en %d segundos (intento %d)...", int(e.Delay.Seconds()), e.Attempt)
	}
	return fmt.Sprintf("Problema de conexión, reintentando en %d segundos (intento %d)...", int(e.Delay.Seconds()), e.Attempt)
}

// Options configure a Client. Zero values fall back to the defaults; a
// negative MaxRetries disables retries.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryStep  time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Observer   Observer

	// OnUnauthorized is called with the rejected token every time the
	// backend answers 401.
	OnUnauthorized func(ctx context.Context, token string)
	// OnRetry is called before each retry sleep.
	OnRetry func(ctx context.Context, ev RetryEvent)
}

// Client wraps the backend's REST endpoints.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	timeout        time.Duration
	maxRetries     int
	retryStep      time.Duration
	logger         *logging.Logger
	observer       Observer
	onUnauthorized func(ctx context.Context, token string)
	onRetry        func(ctx context.Context, ev RetryEvent)
	sleep          func(ctx context.Context, d time.Duration) error
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("spaapi: base URL required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("spaapi: parse base URL: %w", err)
	}
	c := &Client{
		httpClient:     opts.HTTPClient,
		baseURL:        base,
		timeout:        opts.Timeout,
		maxRetries:     opts.MaxRetries,
		retryStep:      opts.RetryStep,
		logger:         opts.Logger,
		observer:       opts.Observer,
		onUnauthorized: opts.OnUnauthorized,
		onRetry:        opts.OnRetry,
		sleep:          sleepContext,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	} else if opts.MaxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.retryStep <= 0 {
		c.retryStep = DefaultRetryStep
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	return c, nil
}

type authMode int

const (
	authNone authMode = iota
	// authQuery appends ?token=... as the appointment and payment routes expect.
	authQuery
	// authBearer sends Authorization: Bearer as the user and service admin
	// routes expect.
	authBearer
)

type call struct {
	name   string
	method string
	path   string
	query  url.Values
	token  string
	auth   authMode
	body   any
	out    any
}

func (c *Client) do(ctx context.Context, cl call) error {
	ctx, span := spaapiTracer.Start(ctx, "spaapi."+cl.name)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", cl.method),
		attribute.String("spa.endpoint", cl.name),
	)

	var payload []byte
	if cl.body != nil {
		var err error
		payload, err = json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("spaapi: %s: marshal request: %w", cl.name, err)
		}
	}

	started := time.Now()
	var lastErr error
	attempts := 0
	for attempt := 0; ; attempt++ {
		attempts++
		err := c.attempt(ctx, cl, payload)
		if err == nil {
			c.observeRequest(cl.name, "ok", time.Since(started))
			return nil
		}
		lastErr = err

		reason, retryable := retryReason(ctx, err)
		if !retryable || attempt >= c.maxRetries {
			break
		}

		delay := time.Duration(attempt+1) * c.retryStep
		ev := RetryEvent{Endpoint: cl.name, Attempt: attempt + 1, Delay: delay, Reason: reason}
		c.logger.Warn("spa API call failed, retrying", "endpoint", cl.name, "attempt", ev.Attempt, "delay", delay.String(), "reason", reason, "error", err)
		if c.observer != nil {
			c.observer.ObserveRetry(cl.name, reason)
		}
		if c.onRetry != nil {
			c.onRetry(ctx, ev)
		}
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "spa API call failed")
	c.observeRequest(cl.name, outcomeOf(lastErr), time.Since(started))

	if _, retryable := retryReason(ctx, lastErr); retryable {
		return fmt.Errorf("spaapi: %s: %w", cl.name, &TransientError{Attempts: attempts, Err: lastErr})
	}
	return fmt.Errorf("spaapi: %s: %w", cl.name, lastErr)
}

func (c *Client) attempt(ctx context.Context, cl call, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + cl.path
	q := url.Values{}
	for k, v := range cl.query {
		q[k] = v
	}
	if cl.auth == authQuery && cl.token != "" {
		q.Set("token", cl.token)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.auth == authBearer && cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{After: c.timeout}
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{After: c.timeout}
		}
		return &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("spa API rejected token", "endpoint", cl.name)
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx, cl.token)
		}
		return ErrUnauthorized
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), respBody) {
		return &ColdStartError{Status: resp.StatusCode, Title: pageTitle(respBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncate(string(respBody), maxErrorBody)
		c.logger.Warn("spa API non-2xx response", "status", resp.StatusCode, "endpoint", cl.name, "body", msg)
		return &RejectedError{Status: resp.StatusCode, Message: serverMessage(respBody), Body: msg}
	}

	if len(respBody) == 0 || cl.out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, cl.out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observeRequest(endpoint, outcome string, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, outcome, d)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
