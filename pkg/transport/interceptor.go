package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
)

// SyntheticHeader marks responses synthesized during shutdown.
const SyntheticHeader = "X-Maestro-Synthetic"

// RestoreFunc tries to bring the companion back. It reports whether the
// connection is usable again.
type RestoreFunc func(ctx context.Context) bool

type budgetKey struct{}

// restoreBudget allows one restore call per logical request, shared by the
// request-level and network-level tiers.
type restoreBudget struct {
	spent    bool
	restored bool
}

func withBudget(ctx context.Context) (context.Context, *restoreBudget) {
	if b, ok := ctx.Value(budgetKey{}).(*restoreBudget); ok {
		return ctx, b
	}
	b := &restoreBudget{}
	return context.WithValue(ctx, budgetKey{}, b), b
}

func budgetFrom(ctx context.Context) *restoreBudget {
	b, _ := ctx.Value(budgetKey{}).(*restoreBudget)
	return b
}

// try calls fn unless the budget is spent. The second return value reports
// whether fn was invoked.
func (b *restoreBudget) try(ctx context.Context, fn RestoreFunc) (restored, invoked bool) {
	if b == nil || b.spent {
		return false, false
	}
	b.spent = true
	b.restored = fn(ctx)
	return b.restored, true
}

// networkInterceptor is the inner tier. It sits directly on top of the HTTP
// transport and sees every physical connection failure.
type networkInterceptor struct {
	base     http.RoundTripper
	restore  RestoreFunc
	shutdown *atomic.Bool
	target   string
}

func (n *networkInterceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := n.base.RoundTrip(req)
	if err == nil {
		resp.Body = &shutdownAwareBody{ReadCloser: resp.Body, shutdown: n.shutdown}
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}
	if n.shutdown.Load() {
		return synthesize(req), nil
	}

	restored, invoked := budgetFrom(req.Context()).try(req.Context(), n.restore)
	if !invoked || !restored {
		// The exit hook may have fired while restore was probing.
		if n.shutdown.Load() {
			return synthesize(req), nil
		}
		return nil, &UnreachableError{Target: n.target, Cause: err}
	}

	retry, rerr := rewind(req)
	if rerr != nil {
		return nil, &UnreachableError{Target: n.target, Cause: rerr}
	}
	resp, err = n.base.RoundTrip(retry)
	if err != nil {
		if n.shutdown.Load() {
			return synthesize(req), nil
		}
		if req.Context().Err() != nil {
			return nil, err
		}
		return nil, &UnreachableError{Target: n.target, Cause: err}
	}
	resp.Body = &shutdownAwareBody{ReadCloser: resp.Body, shutdown: n.shutdown}
	return resp, nil
}

// rewind returns a copy of req with a fresh body so it can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func synthesize(req *http.Request) *http.Response {
	h := make(http.Header)
	h.Set(SyntheticHeader, "shutdown")
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     h,
		Body:       http.NoBody,
		Request:    req,
	}
}

// shutdownAwareBody turns a read failure during shutdown into a clean EOF.
type shutdownAwareBody struct {
	io.ReadCloser
	shutdown *atomic.Bool
}

func (b *shutdownAwareBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF && b.shutdown.Load() {
		return n, io.EOF
	}
	return n, err
}
