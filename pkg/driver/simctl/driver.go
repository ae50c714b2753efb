// Package simctl exposes the part of the device contract that xcrun simctl owns:
// app lifecycle, app state, keychain, location, deep links and permissions.
package simctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/simulator"
)

const backendName = "simctl"

// Driver implements core.Device for one simulator.
type Driver struct {
	udid   string
	ctl    *simulator.Control
	opened atomic.Bool
}

// New creates a driver for the simulator with the given UDID.
func New(udid string, ctl *simulator.Control) *Driver {
	return &Driver{udid: udid, ctl: ctl}
}

func (d *Driver) ID() string {
	return d.udid
}

// Open checks that the simulator exists and is booted.
func (d *Driver) Open(ctx context.Context) core.Result[core.Unit] {
	status, err := d.ctl.CheckBootStatus(ctx, d.udid)
	if err != nil {
		return core.Fail[core.Unit](failure(err).WithOp(core.OpOpen))
	}
	if !status.IsReady() {
		return core.Fail[core.Unit](core.Unreachable(fmt.Sprintf("simulator %s is not booted", d.udid), nil).WithOp(core.OpOpen))
	}
	d.opened.Store(true)
	logger.Debug("simctl backend open for %s", d.udid)
	return core.Done()
}

func (d *Driver) DeviceInfo(ctx context.Context) core.Result[core.DeviceInfo] {
	return core.Abort[core.DeviceInfo](backendName, core.OpDeviceInfo)
}

func (d *Driver) ContentDescriptor(ctx context.Context) core.Result[*core.ViewNode] {
	return core.Abort[*core.ViewNode](backendName, core.OpContentDescriptor)
}

func (d *Driver) Tap(ctx context.Context, x, y int) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpTap)
}

func (d *Driver) LongPress(ctx context.Context, x, y int) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpLongPress)
}

func (d *Driver) PressKey(ctx context.Context, code int) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPressKey)
}

func (d *Driver) PressButton(ctx context.Context, code int) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPressButton)
}

func (d *Driver) Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpScroll)
}

func (d *Driver) Input(ctx context.Context, text string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpInput)
}

func (d *Driver) Install(ctx context.Context, app io.Reader) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpInstall)
}

func (d *Driver) Uninstall(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return unit(core.OpUninstall, d.ctl.Uninstall(ctx, d.udid, string(id)))
}

func (d *Driver) PullAppState(ctx context.Context, id core.AppID, dest string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPullAppState)
}

func (d *Driver) PushAppState(ctx context.Context, id core.AppID, src string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPushAppState)
}

// ClearAppState terminates the app and wipes its data container.
func (d *Driver) ClearAppState(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return unit(core.OpClearAppState, d.ctl.ClearAppState(ctx, d.udid, string(id)))
}

func (d *Driver) ClearKeychain(ctx context.Context) core.Result[core.Unit] {
	return unit(core.OpClearKeychain, d.ctl.ClearKeychain(ctx, d.udid))
}

func (d *Driver) Launch(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return unit(core.OpLaunch, d.ctl.Launch(ctx, d.udid, string(id)))
}

func (d *Driver) Stop(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return unit(core.OpStop, d.ctl.Terminate(ctx, d.udid, string(id)))
}

func (d *Driver) OpenLink(ctx context.Context, link string) core.Result[core.Unit] {
	return unit(core.OpOpenLink, d.ctl.OpenURL(ctx, d.udid, link))
}

func (d *Driver) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpTakeScreenshot)
}

func (d *Driver) StartScreenRecording(ctx context.Context, out io.Writer) core.Result[core.ScreenRecording] {
	return core.Abort[core.ScreenRecording](backendName, core.OpStartScreenRecording)
}

func (d *Driver) SetLocation(ctx context.Context, latitude, longitude float64) core.Result[core.Unit] {
	return unit(core.OpSetLocation, d.ctl.SetLocation(ctx, d.udid, latitude, longitude))
}

// SetPermissions grants permissions through applesimutils. An empty map grants
// simulator.DefaultPermissions.
func (d *Driver) SetPermissions(ctx context.Context, id core.AppID, permissions map[string]string) core.Result[core.Unit] {
	return unit(core.OpSetPermissions, d.ctl.GrantPermissions(ctx, d.udid, string(id), permissions))
}

func (d *Driver) IsScreenStatic(ctx context.Context) core.Result[bool] {
	return core.Abort[bool](backendName, core.OpIsScreenStatic)
}

// IsShutdown reports whether the backend is closed. Simctl has no process of
// its own to lose.
func (d *Driver) IsShutdown() bool {
	return !d.opened.Load()
}

func (d *Driver) Close() {
	d.opened.Store(false)
}

func unit(op core.Operation, err error) core.Result[core.Unit] {
	if err != nil {
		return core.Fail[core.Unit](failure(err).WithOp(op))
	}
	return core.Done()
}

// failure keeps Timeouts from bounded waits and turns command errors into
// Unknown with the command's stderr as the raw body.
func failure(err error) *core.Failure {
	var f *core.Failure
	if errors.As(err, &f) {
		return f
	}
	var cmdErr *simulator.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Output != "" {
		return core.Unknown(cmdErr.Output).WithCause(err)
	}
	return core.AsFailure(err)
}

var _ core.Device = (*Driver)(nil)
