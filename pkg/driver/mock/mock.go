// Package mock provides a testify mock of core.Device for testing code that
// drives devices without a real backend.
package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// Device is a mock backend. Program it with On(...).Return(...) using the
// method name and core.Result values:
//
//	dev.On("Tap", mock.Anything, 10, 20).Return(core.Done())
type Device struct {
	mock.Mock
	DeviceID string
}

// New creates a mock device with the given id.
func New(id string) *Device {
	if id == "" {
		id = "mock-device"
	}
	return &Device{DeviceID: id}
}

func (d *Device) ID() string {
	return d.DeviceID
}

func (d *Device) Open(ctx context.Context) core.Result[core.Unit] {
	return d.Called(ctx).Get(0).(core.Result[core.Unit])
}

func (d *Device) DeviceInfo(ctx context.Context) core.Result[core.DeviceInfo] {
	return d.Called(ctx).Get(0).(core.Result[core.DeviceInfo])
}

func (d *Device) ContentDescriptor(ctx context.Context) core.Result[*core.ViewNode] {
	return d.Called(ctx).Get(0).(core.Result[*core.ViewNode])
}

func (d *Device) Tap(ctx context.Context, x, y int) core.Result[core.Unit] {
	return d.Called(ctx, x, y).Get(0).(core.Result[core.Unit])
}

func (d *Device) LongPress(ctx context.Context, x, y int) core.Result[core.Unit] {
	return d.Called(ctx, x, y).Get(0).(core.Result[core.Unit])
}

func (d *Device) PressKey(ctx context.Context, code int) core.Result[core.Unit] {
	return d.Called(ctx, code).Get(0).(core.Result[core.Unit])
}

func (d *Device) PressButton(ctx context.Context, code int) core.Result[core.Unit] {
	return d.Called(ctx, code).Get(0).(core.Result[core.Unit])
}

func (d *Device) Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) core.Result[core.Unit] {
	return d.Called(ctx, xStart, yStart, xEnd, yEnd, duration).Get(0).(core.Result[core.Unit])
}

func (d *Device) Input(ctx context.Context, text string) core.Result[core.Unit] {
	return d.Called(ctx, text).Get(0).(core.Result[core.Unit])
}

func (d *Device) EraseText(ctx context.Context, n int) core.Result[core.Unit] {
	return d.Called(ctx, n).Get(0).(core.Result[core.Unit])
}

func (d *Device) Install(ctx context.Context, app io.Reader) core.Result[core.Unit] {
	return d.Called(ctx, app).Get(0).(core.Result[core.Unit])
}

func (d *Device) Uninstall(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.Called(ctx, id).Get(0).(core.Result[core.Unit])
}

func (d *Device) PullAppState(ctx context.Context, id core.AppID, dest string) core.Result[core.Unit] {
	return d.Called(ctx, id, dest).Get(0).(core.Result[core.Unit])
}

func (d *Device) PushAppState(ctx context.Context, id core.AppID, src string) core.Result[core.Unit] {
	return d.Called(ctx, id, src).Get(0).(core.Result[core.Unit])
}

func (d *Device) ClearAppState(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.Called(ctx, id).Get(0).(core.Result[core.Unit])
}

func (d *Device) ClearKeychain(ctx context.Context) core.Result[core.Unit] {
	return d.Called(ctx).Get(0).(core.Result[core.Unit])
}

func (d *Device) Launch(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.Called(ctx, id).Get(0).(core.Result[core.Unit])
}

func (d *Device) Stop(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.Called(ctx, id).Get(0).(core.Result[core.Unit])
}

func (d *Device) OpenLink(ctx context.Context, link string) core.Result[core.Unit] {
	return d.Called(ctx, link).Get(0).(core.Result[core.Unit])
}

func (d *Device) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) core.Result[core.Unit] {
	return d.Called(ctx, out, compressed).Get(0).(core.Result[core.Unit])
}

func (d *Device) StartScreenRecording(ctx context.Context, out io.Writer) core.Result[core.ScreenRecording] {
	return d.Called(ctx, out).Get(0).(core.Result[core.ScreenRecording])
}

func (d *Device) SetLocation(ctx context.Context, latitude, longitude float64) core.Result[core.Unit] {
	return d.Called(ctx, latitude, longitude).Get(0).(core.Result[core.Unit])
}

func (d *Device) SetPermissions(ctx context.Context, id core.AppID, permissions map[string]string) core.Result[core.Unit] {
	return d.Called(ctx, id, permissions).Get(0).(core.Result[core.Unit])
}

func (d *Device) IsScreenStatic(ctx context.Context) core.Result[bool] {
	return d.Called(ctx).Get(0).(core.Result[bool])
}

func (d *Device) IsShutdown() bool {
	return d.Called().Bool(0)
}

func (d *Device) Close() {
	d.Called()
}

var _ core.Device = (*Device)(nil)
