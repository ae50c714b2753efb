// Package transport is the HTTP client to the on-device companion process.
//
// Connection failures go through two tiers. The request-level tier in
// Execute restores the connection at most once and re-issues the request.
// The network-level tier wraps the HTTP transport: during process shutdown
// it turns connection failures into empty 200 responses, otherwise it applies
// the same restore-or-fail policy. Both tiers draw from one restore budget per
// request, so a single physical failure never triggers two restores.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// Default timeouts.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

var tracer = otel.Tracer("maestro-device/transport")

// Request is a single companion call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
}

// Response is a completed exchange. A non-2xx status is not a transport failure.
type Response struct {
	StatusCode int
	Body       []byte
	Synthetic  bool // produced by the shutdown mask, not the companion
}

// OK returns true for 2xx responses.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client talks to one companion endpoint.
type Client struct {
	baseURL   string
	http      *http.Client
	restore   RestoreFunc
	shutdown  *atomic.Bool
	intercept bool
	base      http.RoundTripper
	connectTO time.Duration
	readTO    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRestore sets the reconnection callback. Without one, every connection
// failure is surfaced as Unreachable.
func WithRestore(fn RestoreFunc) Option {
	return func(c *Client) { c.restore = fn }
}

// WithoutNetworkInterceptor disables the network-level tier. Only the
// request-level retry runs and shutdown masking is off.
func WithoutNetworkInterceptor() Option {
	return func(c *Client) { c.intercept = false }
}

// WithTimeouts overrides the connect and response-header timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		if connect > 0 {
			c.connectTO = connect
		}
		if read > 0 {
			c.readTO = read
		}
	}
}

// WithShutdownFlag replaces the process-wide shutdown flag. Used by tests.
func WithShutdownFlag(flag *atomic.Bool) Option {
	return func(c *Client) { c.shutdown = flag }
}

// WithBaseTransport replaces the underlying HTTP round tripper.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// New creates a client for baseURL (e.g. "http://localhost:22087").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		restore:   func(context.Context) bool { return false },
		shutdown:  &shuttingDown,
		intercept: true,
		connectTO: DefaultConnectTimeout,
		readTO:    DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = &http.Transport{
			Proxy:                 nil,
			DialContext:           (&net.Dialer{Timeout: c.connectTO}).DialContext,
			ResponseHeaderTimeout: c.readTO,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	rt := c.base
	if c.intercept {
		rt = &networkInterceptor{
			base:     c.base,
			restore:  c.restore,
			shutdown: c.shutdown,
			target:   c.baseURL,
		}
	}
	c.http = &http.Client{Transport: rt}
	return c
}

// BaseURL returns the endpoint this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) core.Result[*Response] {
	return c.Execute(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// PostJSON issues a POST request with v encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, path string, v interface{}) core.Result[*Response] {
	data, err := json.Marshal(v)
	if err != nil {
		return core.Fail[*Response](core.Unknown(fmt.Sprintf("marshal request: %v", err)))
	}
	return c.Execute(ctx, &Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        data,
		ContentType: "application/json",
	})
}

// Execute performs one logical request, applying the restore policy.
func (c *Client) Execute(ctx context.Context, r *Request) core.Result[*Response] {
	ctx, span := tracer.Start(ctx, r.Method+" "+r.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.Path),
			attribute.Bool("transport.network_interceptor", c.intercept),
		),
	)
	defer span.End()

	ctx, budget := withBudget(ctx)
	start := time.Now()

	resp, err := c.do(ctx, r)
	if err != nil && ctx.Err() == nil && !isUnreachable(err) && !isMalformed(err) {
		// A spent budget means the network tier already tried.
		if restored, _ := budget.try(ctx, c.restore); restored {
			resp, err = c.do(ctx, r)
		} else if c.intercept && c.shutdown.Load() {
			resp, err = &Response{StatusCode: http.StatusOK, Synthetic: true}, nil
		} else {
			err = &UnreachableError{Target: c.baseURL, Cause: err}
		}
	}
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Bool("transport.restore_called", budget.spent))

	if err != nil {
		f := c.classify(ctx, r, err, elapsed)
		span.SetAttributes(attribute.String("error.type", f.Kind.String()))
		logger.Debug("%s %s [%v] ERROR: %v", r.Method, r.Path, elapsed, err)
		return core.Fail[*Response](f)
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Bool("transport.synthetic", resp.Synthetic),
	)
	status := "OK"
	if resp.Synthetic {
		status = "SYNTHETIC"
	} else if !resp.OK() {
		status = fmt.Sprintf("ERR:%d", resp.StatusCode)
	}
	logger.Debug("%s %s [%v] %s", r.Method, r.Path, elapsed, status)
	return core.Ok(resp)
}

func (c *Client) classify(ctx context.Context, r *Request, err error, elapsed time.Duration) *core.Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.Timeout(r.Method+" "+r.Path, elapsed).WithCause(ctxErr)
	}
	if isMalformed(err) {
		return core.Unknown(err.Error()).WithCause(err)
	}
	var unreachable *UnreachableError
	if errors.As(err, &unreachable) {
		return core.Unreachable("failed to reach companion at "+c.baseURL, unreachable)
	}
	return core.Unreachable("failed to reach companion at "+c.baseURL, &UnreachableError{Target: c.baseURL, Cause: err})
}

type malformedRequest struct{ error }

func isMalformed(err error) bool {
	var m malformedRequest
	return errors.As(err, &m)
}

func isUnreachable(err error) bool {
	var unreachable *UnreachableError
	return errors.As(err, &unreachable)
}

// do sends r once and reads the whole body.
func (c *Client) do(ctx context.Context, r *Request) (*Response, error) {
	u := c.baseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, malformedRequest{fmt.Errorf("create request: %w", err)}
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Synthetic:  resp.Header.Get(SyntheticHeader) != "",
	}, nil
}
