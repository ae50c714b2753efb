// Package xctest drives the on-device XCTest companion over HTTP.
package xctest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/transport"
)

const backendName = "xctest"

// enterKeyCode is the only key the companion can press.
const enterKeyCode = 40

// Defaults for Config.
const (
	DefaultInputDelay    = 75 * time.Millisecond
	DefaultReadyTimeout  = 30 * time.Second
	DefaultReadyInterval = 500 * time.Millisecond
	DefaultProbeTimeout  = 3 * time.Second
)

// InstalledAppsFunc lists bundle ids installed on the device.
type InstalledAppsFunc func(ctx context.Context) ([]string, error)

// Config configures a Driver.
type Config struct {
	DeviceID      string
	BaseURL       string // default http://localhost:<Port>
	Port          int
	Installer     Installer
	InstalledApps InstalledAppsFunc
	InputDelay    time.Duration
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	// ProbeTimeout bounds liveness probes from IsShutdown and restore
	ProbeTimeout     time.Duration
	TransportOptions []transport.Option
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	if c.InputDelay == 0 {
		c.InputDelay = DefaultInputDelay
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.ReadyInterval == 0 {
		c.ReadyInterval = DefaultReadyInterval
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.InstalledApps == nil {
		c.InstalledApps = func(context.Context) ([]string, error) { return nil, nil }
	}
}

// Driver implements core.Device over the XCTest companion.
type Driver struct {
	cfg       Config
	client    *Client
	companion *Companion
}

// New creates a driver. The companion is not started until Open.
func New(cfg Config) *Driver {
	cfg.applyDefaults()
	d := &Driver{
		cfg:       cfg,
		companion: NewCompanion(cfg.DeviceID, cfg.Installer, cfg.ReadyTimeout, cfg.ReadyInterval),
	}
	opts := append([]transport.Option{transport.WithRestore(d.restore)}, cfg.TransportOptions...)
	d.client = NewClient(transport.New(cfg.BaseURL, opts...))
	return d
}

// Companion exposes the lifecycle for inspection.
func (d *Driver) Companion() *Companion {
	return d.companion
}

// restore gives a running companion one short chance to answer again.
// A crashed companion is never soft-restored.
func (d *Driver) restore(ctx context.Context) bool {
	if d.companion.State() != Running {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()
	alive := d.companion.Alive(ctx)
	logger.Info("restore connection to companion on %s: alive=%v", d.cfg.DeviceID, alive)
	return alive
}

// ready fails fast unless the companion is running.
func (d *Driver) ready(op core.Operation) *core.Failure {
	if s := d.companion.State(); s != Running {
		return core.Unreachable(fmt.Sprintf("companion on %s is %s", d.cfg.DeviceID, s), nil).WithOp(op)
	}
	return nil
}

// observe marks the companion crashed once the transport gave up on it.
func (d *Driver) observe(op core.Operation, res core.Result[*transport.Response]) (*transport.Response, *core.Failure) {
	if f := res.Failure(); f != nil {
		if f.Kind == core.KindUnreachable {
			d.companion.MarkCrashed()
		}
		return nil, f.WithOp(op)
	}
	return res.Value(), nil
}

func (d *Driver) ID() string {
	return d.cfg.DeviceID
}

// Open restarts the companion unconditionally.
func (d *Driver) Open(ctx context.Context) core.Result[core.Unit] {
	if err := d.companion.Restart(ctx); err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(core.OpOpen))
	}
	return core.Done()
}

func (d *Driver) DeviceInfo(ctx context.Context) core.Result[core.DeviceInfo] {
	return core.Abort[core.DeviceInfo](backendName, core.OpDeviceInfo)
}

// ContentDescriptor captures the hierarchy of the foreground app.
func (d *Driver) ContentDescriptor(ctx context.Context) core.Result[*core.ViewNode] {
	op := core.OpContentDescriptor
	if f := d.ready(op); f != nil {
		return core.Fail[*core.ViewNode](f)
	}
	appID, f := d.activeAppID(ctx)
	if f != nil {
		return core.Fail[*core.ViewNode](f.WithOp(op))
	}
	if appID == "" {
		return core.Fail[*core.ViewNode](core.Unknown("unable to obtain active app id").WithOp(op))
	}

	resp, f := d.observe(op, d.client.SubTree(ctx, appID))
	if f != nil {
		return core.Fail[*core.ViewNode](f)
	}
	if !resp.OK() {
		return core.Fail[*core.ViewNode](DecodeError(resp.Body).WithOp(op))
	}
	if len(resp.Body) == 0 {
		return core.Fail[*core.ViewNode](core.Unknown("view hierarchy not available, response body is empty").WithOp(op))
	}
	root, err := parseHierarchy(resp.Body)
	if err != nil {
		return core.Fail[*core.ViewNode](core.Unknown(string(resp.Body)).WithCause(err).WithOp(op))
	}
	return core.Ok(root)
}

// unit maps a response with no payload.
func (d *Driver) unit(op core.Operation, res core.Result[*transport.Response]) core.Result[core.Unit] {
	resp, f := d.observe(op, res)
	if f != nil {
		return core.Fail[core.Unit](f)
	}
	if !resp.OK() {
		return core.Fail[core.Unit](DecodeError(resp.Body).WithOp(op))
	}
	return core.Done()
}

func (d *Driver) Tap(ctx context.Context, x, y int) core.Result[core.Unit] {
	if f := d.ready(core.OpTap); f != nil {
		return core.Fail[core.Unit](f)
	}
	return d.unit(core.OpTap, d.client.Touch(ctx, float64(x), float64(y)))
}

func (d *Driver) LongPress(ctx context.Context, x, y int) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpLongPress)
}

// PressKey supports only the enter key.
func (d *Driver) PressKey(ctx context.Context, code int) core.Result[core.Unit] {
	if f := d.ready(core.OpPressKey); f != nil {
		return core.Fail[core.Unit](f)
	}
	if code != enterKeyCode {
		return core.Fail[core.Unit](core.Unknown(fmt.Sprintf("xctest can only press the enter key (code %d), got %d", enterKeyCode, code)).WithOp(core.OpPressKey))
	}
	return d.unit(core.OpPressKey, d.client.InputText(ctx, "\n"))
}

func (d *Driver) PressButton(ctx context.Context, code int) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPressButton)
}

// Scroll swipes within the foreground app. With no foreground app there is
// nothing to scroll and the call succeeds.
func (d *Driver) Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) core.Result[core.Unit] {
	op := core.OpScroll
	if f := d.ready(op); f != nil {
		return core.Fail[core.Unit](f)
	}
	appID, f := d.activeAppID(ctx)
	if f != nil {
		return core.Fail[core.Unit](f.WithOp(op))
	}
	if appID == "" {
		return core.Done()
	}
	return d.unit(op, d.client.Swipe(ctx, appID, xStart, yStart, xEnd, yEnd, duration))
}

// Input types text one character at a time with a settle delay between
// characters, so it costs one round trip per character.
func (d *Driver) Input(ctx context.Context, text string) core.Result[core.Unit] {
	op := core.OpInput
	if f := d.ready(op); f != nil {
		return core.Fail[core.Unit](f)
	}
	start := time.Now()
	first := true
	for _, r := range text {
		if !first {
			t := time.NewTimer(d.cfg.InputDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return core.Fail[core.Unit](core.Timeout("text input", time.Since(start)).WithCause(ctx.Err()).WithOp(op))
			case <-t.C:
			}
		}
		first = false

		resp, f := d.observe(op, d.client.InputText(ctx, string(r)))
		if f != nil {
			return core.Fail[core.Unit](f)
		}
		if resp.StatusCode == http.StatusNotFound {
			return core.Fail[core.Unit](core.RemoteError(InputFieldNotFoundCode, "unable to find focused input field").WithOp(op))
		}
		if !resp.OK() {
			return core.Fail[core.Unit](DecodeError(resp.Body).WithOp(op))
		}
	}
	return core.Done()
}

func (d *Driver) Install(ctx context.Context, app io.Reader) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpInstall)
}

func (d *Driver) Uninstall(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpUninstall)
}

func (d *Driver) PullAppState(ctx context.Context, id core.AppID, dest string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPullAppState)
}

func (d *Driver) PushAppState(ctx context.Context, id core.AppID, src string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPushAppState)
}

func (d *Driver) ClearAppState(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpClearAppState)
}

func (d *Driver) ClearKeychain(ctx context.Context) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpClearKeychain)
}

func (d *Driver) Launch(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpLaunch)
}

func (d *Driver) Stop(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpStop)
}

func (d *Driver) OpenLink(ctx context.Context, link string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpOpenLink)
}

// TakeScreenshot writes a PNG (or JPEG when compressed) to out.
func (d *Driver) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) core.Result[core.Unit] {
	op := core.OpTakeScreenshot
	if f := d.ready(op); f != nil {
		return core.Fail[core.Unit](f)
	}
	resp, f := d.observe(op, d.client.Screenshot(ctx, compressed))
	if f != nil {
		return core.Fail[core.Unit](f)
	}
	if !resp.OK() {
		return core.Fail[core.Unit](core.Unknown(string(resp.Body)).WithOp(op))
	}
	if _, err := out.Write(resp.Body); err != nil {
		return core.Fail[core.Unit](core.Unknown("write screenshot").WithCause(err).WithOp(op))
	}
	return core.Done()
}

func (d *Driver) StartScreenRecording(ctx context.Context, out io.Writer) core.Result[core.ScreenRecording] {
	return core.Abort[core.ScreenRecording](backendName, core.OpStartScreenRecording)
}

func (d *Driver) SetLocation(ctx context.Context, latitude, longitude float64) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpSetLocation)
}

func (d *Driver) SetPermissions(ctx context.Context, id core.AppID, permissions map[string]string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpSetPermissions)
}

// IsScreenStatic asks the companion whether the screen stopped changing.
func (d *Driver) IsScreenStatic(ctx context.Context) core.Result[bool] {
	op := core.OpIsScreenStatic
	if f := d.ready(op); f != nil {
		return core.Fail[bool](f)
	}
	resp, f := d.observe(op, d.client.IsScreenStatic(ctx))
	if f != nil {
		return core.Fail[bool](f)
	}
	if !resp.OK() {
		logger.Info("Screen diff request failed with error = %s", resp.Body)
		return core.Fail[bool](core.Unknown(string(resp.Body)).WithOp(op))
	}
	var body isScreenStaticResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return core.Fail[bool](core.Unknown(string(resp.Body)).WithCause(err).WithOp(op))
	}
	logger.Debug("Screen diff request finished with isScreenStatic = %v", body.IsScreenStatic)
	return core.Ok(body.IsScreenStatic)
}

// IsShutdown reflects companion liveness, not transport reachability.
func (d *Driver) IsShutdown() bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ProbeTimeout)
	defer cancel()
	return !d.companion.Alive(ctx)
}

// Close stops the companion and releases the transport.
func (d *Driver) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ReadyTimeout)
	defer cancel()
	d.companion.Stop(ctx)
	d.client.Close()
}

// activeAppID returns the foreground app among the installed ones, or ""
// when the companion cannot tell.
func (d *Driver) activeAppID(ctx context.Context) (string, *core.Failure) {
	apps, err := d.cfg.InstalledApps(ctx)
	if err != nil {
		return "", core.AsFailure(fmt.Errorf("list installed apps: %w", err))
	}
	logger.Debug("installed apps: %v", apps)

	resp, f := d.observe(core.OpContentDescriptor, d.client.RunningApp(ctx, apps))
	if f != nil {
		return "", f
	}
	if !resp.OK() {
		logger.Info("request to resolve running app id failed - Code: %d Body: %s", resp.StatusCode, resp.Body)
		return "", nil
	}
	if resp.Synthetic || len(resp.Body) == 0 {
		return "", nil
	}
	var body runningAppResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", core.Unknown(string(resp.Body)).WithCause(err)
	}
	logger.Debug("found running app id %s", body.RunningAppBundleID)
	return body.RunningAppBundleID, nil
}

var _ core.Device = (*Driver)(nil)
