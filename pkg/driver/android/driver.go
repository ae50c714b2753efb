// Package android drives an Android device through the on-device driver
// service (gRPC, forwarded over adb) plus adb shell commands.
package android

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/device"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/wait"
)

const backendName = "android"

// Defaults for Config.
const (
	DefaultHostPort         = 7001
	DefaultReadyTimeout     = 30 * time.Second
	DefaultReadyInterval    = 500 * time.Millisecond
	DefaultLocationInterval = 250 * time.Millisecond
	DefaultLongPress        = 3 * time.Second
)

// ADB is the adb surface the driver needs. *device.AndroidDevice implements it.
type ADB interface {
	Serial() string
	Shell(ctx context.Context, cmd string) (string, error)
	Install(ctx context.Context, apkPath string) error
	Uninstall(ctx context.Context, pkg string) error
	Forward(ctx context.Context, localPort, remotePort int) error
	RemoveForward(ctx context.Context, localPort int) error
	StartDriverService(ctx context.Context) error
	StopDriverService(ctx context.Context)
}

var _ ADB = (*device.AndroidDevice)(nil)

// Config configures a Driver.
type Config struct {
	HostPort         int
	Target           string // gRPC target, default 127.0.0.1:<HostPort>
	DialOptions      []grpc.DialOption
	ReadyTimeout     time.Duration
	ReadyInterval    time.Duration
	LocationInterval time.Duration
	LongPress        time.Duration
	TempDir          string
}

// Permission names accepted by SetPermissions.
var permissions = map[string][]string{
	"camera":        {"android.permission.CAMERA"},
	"contacts":      {"android.permission.READ_CONTACTS", "android.permission.WRITE_CONTACTS"},
	"location":      {"android.permission.ACCESS_FINE_LOCATION", "android.permission.ACCESS_COARSE_LOCATION"},
	"microphone":    {"android.permission.RECORD_AUDIO"},
	"notifications": {"android.permission.POST_NOTIFICATIONS"},
	"phone":         {"android.permission.CALL_PHONE"},
	"storage":       {"android.permission.READ_EXTERNAL_STORAGE", "android.permission.WRITE_EXTERNAL_STORAGE"},
}

// Driver implements core.Device for Android.
type Driver struct {
	cfg      Config
	adb      ADB
	conn     *grpc.ClientConn
	client   DriverServiceClient
	location locationState
	closed   atomic.Bool
}

// New creates a driver. Nothing is started until Open.
func New(adb ADB, cfg Config) *Driver {
	if cfg.HostPort == 0 {
		cfg.HostPort = DefaultHostPort
	}
	if cfg.Target == "" {
		cfg.Target = fmt.Sprintf("127.0.0.1:%d", cfg.HostPort)
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.ReadyInterval == 0 {
		cfg.ReadyInterval = DefaultReadyInterval
	}
	if cfg.LocationInterval == 0 {
		cfg.LocationInterval = DefaultLocationInterval
	}
	if cfg.LongPress == 0 {
		cfg.LongPress = DefaultLongPress
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	d := &Driver{cfg: cfg, adb: adb}
	d.closed.Store(true)
	return d
}

func (d *Driver) ID() string {
	return d.adb.Serial()
}

// Open forwards the driver service port, starts the service and waits until
// it answers.
func (d *Driver) Open(ctx context.Context) core.Result[core.Unit] {
	op := core.OpOpen
	if err := d.adb.Forward(ctx, d.cfg.HostPort, device.DriverServicePort); err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(op))
	}
	if err := d.adb.StartDriverService(ctx); err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(op))
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, d.cfg.DialOptions...)
	conn, err := grpc.NewClient(d.cfg.Target, opts...)
	if err != nil {
		return core.Fail[core.Unit](core.Unreachable("dial driver service", err).WithOp(op))
	}
	if d.conn != nil {
		d.conn.Close()
	}
	d.conn = conn
	d.client = NewDriverServiceClient(conn)

	err = wait.Until(ctx, "android driver service on "+d.adb.Serial(), d.cfg.ReadyTimeout, d.cfg.ReadyInterval,
		func(ctx context.Context) (bool, error) {
			probe, cancel := context.WithTimeout(ctx, d.cfg.ReadyInterval)
			defer cancel()
			_, err := d.client.DeviceInfo(probe, &DeviceInfoRequest{})
			return err == nil, nil
		})
	if err != nil {
		conn.Close()
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(op))
	}
	d.closed.Store(false)
	logger.Info("android driver service ready on %s", d.adb.Serial())
	return core.Done()
}

func (d *Driver) DeviceInfo(ctx context.Context) core.Result[core.DeviceInfo] {
	resp, err := d.client.DeviceInfo(ctx, &DeviceInfoRequest{})
	if err != nil {
		return core.Fail[core.DeviceInfo](rpcFailure(ctx, err).WithOp(core.OpDeviceInfo))
	}
	return core.Ok(core.DeviceInfo{
		Platform:     "android",
		DeviceID:     d.adb.Serial(),
		WidthPixels:  resp.WidthPixels,
		HeightPixels: resp.HeightPixels,
	})
}

func (d *Driver) ContentDescriptor(ctx context.Context) core.Result[*core.ViewNode] {
	op := core.OpContentDescriptor
	resp, err := d.client.ViewHierarchy(ctx, &ViewHierarchyRequest{})
	if err != nil {
		return core.Fail[*core.ViewNode](rpcFailure(ctx, err).WithOp(op))
	}
	root, err := parseHierarchy(resp.Hierarchy)
	if err != nil {
		return core.Fail[*core.ViewNode](core.Unknown(resp.Hierarchy).WithCause(err).WithOp(op))
	}
	return core.Ok(root)
}

func (d *Driver) Tap(ctx context.Context, x, y int) core.Result[core.Unit] {
	_, err := d.client.Tap(ctx, &TapRequest{X: x, Y: y})
	return rpcUnit(ctx, core.OpTap, err)
}

// LongPress is a zero-distance swipe held for the long-press duration.
func (d *Driver) LongPress(ctx context.Context, x, y int) core.Result[core.Unit] {
	return d.shell(ctx, core.OpLongPress, fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, d.cfg.LongPress.Milliseconds()))
}

func (d *Driver) PressKey(ctx context.Context, code int) core.Result[core.Unit] {
	return d.shell(ctx, core.OpPressKey, fmt.Sprintf("input keyevent %d", code))
}

func (d *Driver) PressButton(ctx context.Context, code int) core.Result[core.Unit] {
	return d.shell(ctx, core.OpPressButton, fmt.Sprintf("input keyevent %d", code))
}

// Scroll swipes between two points. duration is in seconds.
func (d *Driver) Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) core.Result[core.Unit] {
	ms := int64(duration * 1000)
	return d.shell(ctx, core.OpScroll, fmt.Sprintf("input swipe %d %d %d %d %d",
		int(xStart), int(yStart), int(xEnd), int(yEnd), ms))
}

func (d *Driver) Input(ctx context.Context, text string) core.Result[core.Unit] {
	_, err := d.client.InputText(ctx, &InputTextRequest{Text: text})
	return rpcUnit(ctx, core.OpInput, err)
}

// EraseText deletes up to n characters from the focused field.
func (d *Driver) EraseText(ctx context.Context, n int) core.Result[core.Unit] {
	_, err := d.client.EraseAllText(ctx, &EraseAllTextRequest{CharactersToErase: n})
	return rpcUnit(ctx, core.OpEraseText, err)
}

// Install stages the APK stream in a temp file and installs it.
func (d *Driver) Install(ctx context.Context, app io.Reader) core.Result[core.Unit] {
	op := core.OpInstall
	tmp, err := os.CreateTemp(d.cfg.TempDir, "app-*.apk")
	if err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(op))
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, app)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Fail[core.Unit](core.AsFailure(fmt.Errorf("stage apk: %w", err)).WithOp(op))
	}
	return adbUnit(op, d.adb.Install(ctx, tmp.Name()))
}

func (d *Driver) Uninstall(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return adbUnit(core.OpUninstall, d.adb.Uninstall(ctx, string(id)))
}

func (d *Driver) PullAppState(ctx context.Context, id core.AppID, dest string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPullAppState)
}

func (d *Driver) PushAppState(ctx context.Context, id core.AppID, src string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpPushAppState)
}

func (d *Driver) ClearAppState(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.shell(ctx, core.OpClearAppState, "pm clear "+string(id))
}

// ClearKeychain succeeds without doing anything: Android has no keychain.
func (d *Driver) ClearKeychain(ctx context.Context) core.Result[core.Unit] {
	return core.Done()
}

func (d *Driver) Launch(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.shell(ctx, core.OpLaunch, "monkey -p "+string(id)+" -c android.intent.category.LAUNCHER 1")
}

func (d *Driver) Stop(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return d.shell(ctx, core.OpStop, "am force-stop "+string(id))
}

func (d *Driver) OpenLink(ctx context.Context, link string) core.Result[core.Unit] {
	return d.shell(ctx, core.OpOpenLink, "am start -a android.intent.action.VIEW -d "+shellQuote(link))
}

// TakeScreenshot writes the PNG produced by the driver service.
func (d *Driver) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) core.Result[core.Unit] {
	op := core.OpTakeScreenshot
	resp, err := d.client.Screenshot(ctx, &ScreenshotRequest{})
	if err != nil {
		return core.Fail[core.Unit](rpcFailure(ctx, err).WithOp(op))
	}
	if _, err := out.Write(resp.Bytes); err != nil {
		return core.Fail[core.Unit](core.Unknown("write screenshot").WithCause(err).WithOp(op))
	}
	return core.Done()
}

func (d *Driver) StartScreenRecording(ctx context.Context, out io.Writer) core.Result[core.ScreenRecording] {
	return core.Abort[core.ScreenRecording](backendName, core.OpStartScreenRecording)
}

// SetLocation posts the location once and then keeps re-posting it in the
// background until the next SetLocation or Close.
func (d *Driver) SetLocation(ctx context.Context, latitude, longitude float64) core.Result[core.Unit] {
	req := &SetLocationRequest{Latitude: latitude, Longitude: longitude}
	if _, err := d.client.SetLocation(ctx, req); err != nil {
		return core.Fail[core.Unit](rpcFailure(ctx, err).WithOp(core.OpSetLocation))
	}
	d.location.replace(startLocationLoop(d.cfg.LocationInterval, func(ctx context.Context) error {
		_, err := d.client.SetLocation(ctx, req)
		return err
	}))
	return core.Done()
}

// SetPermissions grants ("allow") or revokes ("deny") runtime permissions.
// An empty map grants all known permissions.
func (d *Driver) SetPermissions(ctx context.Context, id core.AppID, perms map[string]string) core.Result[core.Unit] {
	if len(perms) == 0 {
		perms = make(map[string]string, len(permissions))
		for name := range permissions {
			perms[name] = "allow"
		}
	}
	for name, value := range perms {
		android, ok := permissions[name]
		if !ok {
			logger.Warn("unknown android permission %q ignored", name)
			continue
		}
		verb := "grant"
		if v := strings.ToLower(value); v == "deny" || v == "no" || v == "never" {
			verb = "revoke"
		}
		for _, p := range android {
			// Permissions missing from the manifest fail; that is not fatal.
			if _, err := d.adb.Shell(ctx, fmt.Sprintf("pm %s %s %s", verb, id, p)); err != nil {
				logger.Debug("pm %s %s %s: %v", verb, id, p, err)
			}
		}
	}
	return core.Done()
}

func (d *Driver) IsScreenStatic(ctx context.Context) core.Result[bool] {
	return core.Abort[bool](backendName, core.OpIsScreenStatic)
}

func (d *Driver) IsShutdown() bool {
	return d.closed.Load()
}

// Close stops the location loop, the driver service and the port forward.
func (d *Driver) Close() {
	d.location.replace(nil)
	if d.closed.Swap(true) {
		return
	}
	if d.conn != nil {
		d.conn.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.adb.StopDriverService(ctx)
	if err := d.adb.RemoveForward(ctx, d.cfg.HostPort); err != nil {
		logger.Debug("remove forward tcp:%d: %v", d.cfg.HostPort, err)
	}
}

func (d *Driver) shell(ctx context.Context, op core.Operation, cmd string) core.Result[core.Unit] {
	_, err := d.adb.Shell(ctx, cmd)
	return adbUnit(op, err)
}

func adbUnit(op core.Operation, err error) core.Result[core.Unit] {
	if err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(op))
	}
	return core.Done()
}

func rpcUnit(ctx context.Context, op core.Operation, err error) core.Result[core.Unit] {
	if err != nil {
		return core.Fail[core.Unit](rpcFailure(ctx, err).WithOp(op))
	}
	return core.Done()
}

// rpcFailure maps gRPC status codes onto the failure taxonomy. Canceled is
// only a timeout when the caller's context ended; otherwise the connection
// was closed under the call.
func rpcFailure(ctx context.Context, err error) *core.Failure {
	st, ok := status.FromError(err)
	if !ok {
		return core.AsFailure(err)
	}
	switch st.Code() {
	case codes.Unavailable:
		return core.Unreachable("driver service unavailable", err)
	case codes.DeadlineExceeded:
		return core.Timeout("driver service", 0).WithCause(err)
	case codes.Canceled:
		if ctx.Err() != nil {
			return core.Timeout("driver service", 0).WithCause(err)
		}
		return core.Unreachable("driver service connection closed", err)
	case codes.Unknown, codes.Internal:
		return core.Unknown(st.Message()).WithCause(err)
	default:
		return core.RemoteError(strings.ToLower(st.Code().String()), st.Message())
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var (
	_ core.Device     = (*Driver)(nil)
	_ core.TextEraser = (*Driver)(nil)
)
