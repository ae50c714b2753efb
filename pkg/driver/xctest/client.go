package xctest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/transport"
)

// DefaultPort is the loopback port the companion listens on.
const DefaultPort = 22087

// Companion routes.
const (
	routeSubTree        = "/subTree"
	routeRunningApp     = "/runningApp"
	routeSwipe          = "/swipe"
	routeInputText      = "/inputText"
	routeTouch          = "/touch"
	routeScreenshot     = "/screenshot"
	routeIsScreenStatic = "/isScreenStatic"
)

type touchRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type swipeRequest struct {
	AppID    string  `json:"appId"`
	StartX   float64 `json:"startX"`
	StartY   float64 `json:"startY"`
	EndX     float64 `json:"endX"`
	EndY     float64 `json:"endY"`
	Duration float64 `json:"duration"`
}

type inputTextRequest struct {
	Text string `json:"text"`
}

type runningAppRequest struct {
	AppIDs []string `json:"appIds"`
}

type runningAppResponse struct {
	RunningAppBundleID string `json:"runningAppBundleId"`
}

type isScreenStaticResponse struct {
	IsScreenStatic bool `json:"isScreenStatic"`
}

// Client is the wire-level companion API. Every method is one HTTP exchange.
type Client struct {
	t *transport.Client
}

// NewClient wraps a transport client.
func NewClient(t *transport.Client) *Client {
	return &Client{t: t}
}

// SubTree requests the view hierarchy of appID.
func (c *Client) SubTree(ctx context.Context, appID string) core.Result[*transport.Response] {
	return c.t.Get(ctx, routeSubTree, url.Values{"appId": {appID}})
}

// Screenshot requests a PNG, or a JPEG when compressed.
func (c *Client) Screenshot(ctx context.Context, compressed bool) core.Result[*transport.Response] {
	return c.t.Get(ctx, routeScreenshot, url.Values{"compressed": {strconv.FormatBool(compressed)}})
}

// IsScreenStatic asks whether the screen stopped changing.
func (c *Client) IsScreenStatic(ctx context.Context) core.Result[*transport.Response] {
	return c.t.Get(ctx, routeIsScreenStatic, nil)
}

// RunningApp asks which of appIDs is in the foreground.
func (c *Client) RunningApp(ctx context.Context, appIDs []string) core.Result[*transport.Response] {
	if appIDs == nil {
		appIDs = []string{}
	}
	return c.t.PostJSON(ctx, routeRunningApp, runningAppRequest{AppIDs: appIDs})
}

// Swipe drags from start to end over duration seconds.
func (c *Client) Swipe(ctx context.Context, appID string, startX, startY, endX, endY, duration float64) core.Result[*transport.Response] {
	return c.t.PostJSON(ctx, routeSwipe, swipeRequest{
		AppID:    appID,
		StartX:   startX,
		StartY:   startY,
		EndX:     endX,
		EndY:     endY,
		Duration: duration,
	})
}

// InputText types text into the focused field.
func (c *Client) InputText(ctx context.Context, text string) core.Result[*transport.Response] {
	return c.t.PostJSON(ctx, routeInputText, inputTextRequest{Text: text})
}

// Touch taps at x, y.
func (c *Client) Touch(ctx context.Context, x, y float64) core.Result[*transport.Response] {
	return c.t.PostJSON(ctx, routeTouch, touchRequest{X: x, Y: y})
}

// Close releases the transport.
func (c *Client) Close() {
	c.t.Close()
}
