// Package composite implements the device contract for a local iOS simulator
// by routing each operation to the XCTest companion, idb or simctl.
package composite

import (
	"context"
	"fmt"
	"io"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// Device routes every operation to exactly one backend. The only exception is
// ContentDescriptor, which retries once on IDB when XCTest reports a snapshot
// failure.
type Device struct {
	id      string
	drivers map[Backend]core.Device
}

// New creates a composite device over the three iOS backends.
func New(id string, xctest, idb, simctl core.Device) *Device {
	return &Device{
		id: id,
		drivers: map[Backend]core.Device{
			XCTest: xctest,
			IDB:    idb,
			Simctl: simctl,
		},
	}
}

func (d *Device) route(op core.Operation) core.Device {
	b, ok := Routes[op]
	if !ok {
		panic(fmt.Sprintf("composite: no route for %s", op))
	}
	return d.drivers[b]
}

func (d *Device) ID() string {
	return d.id
}

// Open opens every backend, even after one fails. The device is open only if
// all of them succeeded; the first failure is returned.
func (d *Device) Open(ctx context.Context) core.Result[core.Unit] {
	var first *core.Failure
	for _, b := range backends {
		f := d.drivers[b].Open(ctx).Failure()
		if f == nil {
			continue
		}
		logger.Error("open %s backend for %s: %v", b, d.id, f)
		if first == nil {
			first = f
		}
	}
	if first != nil {
		return core.Fail[core.Unit](first)
	}
	return core.Done()
}

func (d *Device) DeviceInfo(ctx context.Context) core.Result[core.DeviceInfo] {
	return d.route(core.OpDeviceInfo).DeviceInfo(ctx)
}

// ContentDescriptor asks XCTest first. Only a snapshot failure sends the
// request to IDB, whose result is returned as is.
func (d *Device) ContentDescriptor(ctx context.Context) core.Result[*core.ViewNode] {
	res := d.route(core.OpContentDescriptor).ContentDescriptor(ctx)
	if !res.Failure().IsSnapshotFailure() {
		return res
	}
	logger.Warn("hierarchy snapshot failed on %s, falling back to %s: %v", Routes[core.OpContentDescriptor], IDB, res.Failure())
	return d.drivers[IDB].ContentDescriptor(ctx)
}

func (d *Device) Tap(ctx context.Context, x, y int) core.Result[core.Unit] {
	return d.route(core.OpTap).Tap(ctx, x, y)
}

func (d *Device) LongPress(ctx context.Context, x, y int) core.Result[core.Unit] {
	return d.route(core.OpLongPress).LongPress(ctx, x, y)
}

func (d *Device) PressKey(ctx context.Context, code int) core.Result[core.Unit] {
	return d.route(core.OpPressKey).PressKey(ctx, code)
}

func (d *Device) PressButton(ctx context.Context, code int) core.Result[core.Unit] {
	return d.route(core.OpPressButton).PressButton(ctx, code)
}

func (d *Device) Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) core.Result[core.Unit] {
	return d.route(core.OpScroll).Scroll(ctx, xStart, yStart, xEnd, yEnd, duration)
}

func (d *Device) Input(ctx context.Context, text string) core.Result[core.Unit] {
	return d.route(core.OpInput).Input(ctx, text)
}

func (d *Device) Install(ctx context.Context, app io.Reader) core.Result[core.Unit] {
	return d.route(core.OpInstall).Install(ctx, app)
}

func (d *Device) Uninstall(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.route(core.OpUninstall).Uninstall(ctx, id)
}

func (d *Device) PullAppState(ctx context.Context, id core.AppID, dest string) core.Result[core.Unit] {
	return d.route(core.OpPullAppState).PullAppState(ctx, id, dest)
}

func (d *Device) PushAppState(ctx context.Context, id core.AppID, src string) core.Result[core.Unit] {
	return d.route(core.OpPushAppState).PushAppState(ctx, id, src)
}

func (d *Device) ClearAppState(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.route(core.OpClearAppState).ClearAppState(ctx, id)
}

func (d *Device) ClearKeychain(ctx context.Context) core.Result[core.Unit] {
	return d.route(core.OpClearKeychain).ClearKeychain(ctx)
}

func (d *Device) Launch(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.route(core.OpLaunch).Launch(ctx, id)
}

func (d *Device) Stop(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.route(core.OpStop).Stop(ctx, id)
}

func (d *Device) OpenLink(ctx context.Context, link string) core.Result[core.Unit] {
	return d.route(core.OpOpenLink).OpenLink(ctx, link)
}

func (d *Device) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) core.Result[core.Unit] {
	return d.route(core.OpTakeScreenshot).TakeScreenshot(ctx, out, compressed)
}

func (d *Device) StartScreenRecording(ctx context.Context, out io.Writer) core.Result[core.ScreenRecording] {
	return d.route(core.OpStartScreenRecording).StartScreenRecording(ctx, out)
}

func (d *Device) SetLocation(ctx context.Context, latitude, longitude float64) core.Result[core.Unit] {
	return d.route(core.OpSetLocation).SetLocation(ctx, latitude, longitude)
}

func (d *Device) SetPermissions(ctx context.Context, id core.AppID, permissions map[string]string) core.Result[core.Unit] {
	return d.route(core.OpSetPermissions).SetPermissions(ctx, id, permissions)
}

func (d *Device) IsScreenStatic(ctx context.Context) core.Result[bool] {
	return d.route(core.OpIsScreenStatic).IsScreenStatic(ctx)
}

// IsShutdown is true only when every backend is shut down.
func (d *Device) IsShutdown() bool {
	for _, b := range backends {
		if !d.drivers[b].IsShutdown() {
			return false
		}
	}
	return true
}

// Close asks every backend to close. A panicking backend does not keep the
// others open.
func (d *Device) Close() {
	for _, b := range backends {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("close %s backend for %s: %v", b, d.id, r)
				}
			}()
			d.drivers[b].Close()
		}()
	}
}

var _ core.Device = (*Device)(nil)
