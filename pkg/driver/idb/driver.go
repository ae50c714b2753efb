// Package idb drives a simulator through the idb command line companion.
// It owns gestures the XCTest companion lacks, app file transfer and screen
// recording, and serves as the accessibility-tree fallback for hierarchy
// capture.
package idb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/simulator"
)

const backendName = "idb"

// DefaultLongPressDuration is how long LongPress holds the touch.
const DefaultLongPressDuration = 3 * time.Second

// Hardware buttons by idb's HID button number.
var buttons = map[int]string{
	1: "APPLE_PAY",
	2: "HOME",
	3: "LOCK",
	4: "SIDE_BUTTON",
	5: "SIRI",
}

// Config configures a Driver.
type Config struct {
	UDID              string
	Binary            string // default "idb"
	Runner            simulator.CommandRunner
	Starter           Starter
	TempDir           string // default os.TempDir()
	LongPressDuration time.Duration
}

// Driver implements core.Device over idb.
type Driver struct {
	cfg       Config
	connected atomic.Bool
}

// New creates a driver. Nothing runs until Open.
func New(cfg Config) *Driver {
	if cfg.Binary == "" {
		cfg.Binary = "idb"
	}
	if cfg.Runner == nil {
		cfg.Runner = simulator.ExecRunner{}
	}
	if cfg.Starter == nil {
		cfg.Starter = execStarter{}
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.LongPressDuration == 0 {
		cfg.LongPressDuration = DefaultLongPressDuration
	}
	return &Driver{cfg: cfg}
}

// idb runs `idb <sub...> --udid <udid> <args...>`.
func (d *Driver) idb(ctx context.Context, sub []string, args ...string) ([]byte, error) {
	argv := append(append(append([]string{}, sub...), "--udid", d.cfg.UDID), args...)
	return d.cfg.Runner.Run(ctx, d.cfg.Binary, argv...)
}

func (d *Driver) ID() string {
	return d.cfg.UDID
}

// Open connects the idb companion to the simulator.
func (d *Driver) Open(ctx context.Context) core.Result[core.Unit] {
	if _, err := d.cfg.Runner.Run(ctx, d.cfg.Binary, "connect", d.cfg.UDID); err != nil {
		return core.Fail[core.Unit](failure(err).WithOp(core.OpOpen))
	}
	d.connected.Store(true)
	logger.Info("idb connected to %s", d.cfg.UDID)
	return core.Done()
}

func (d *Driver) DeviceInfo(ctx context.Context) core.Result[core.DeviceInfo] {
	out, err := d.idb(ctx, []string{"describe"}, "--json")
	if err != nil {
		return core.Fail[core.DeviceInfo](failure(err).WithOp(core.OpDeviceInfo))
	}
	info, err := parseDescribe(d.cfg.UDID, out)
	if err != nil {
		return core.Fail[core.DeviceInfo](core.Unknown(string(out)).WithCause(err).WithOp(core.OpDeviceInfo))
	}
	return core.Ok(info)
}

// ContentDescriptor reads the accessibility tree.
func (d *Driver) ContentDescriptor(ctx context.Context) core.Result[*core.ViewNode] {
	out, err := d.idb(ctx, []string{"ui", "describe-all"}, "--json")
	if err != nil {
		return core.Fail[*core.ViewNode](failure(err).WithOp(core.OpContentDescriptor))
	}
	root, err := parseDescribeAll(out)
	if err != nil {
		return core.Fail[*core.ViewNode](core.Unknown(string(out)).WithCause(err).WithOp(core.OpContentDescriptor))
	}
	return core.Ok(root)
}

func (d *Driver) Tap(ctx context.Context, x, y int) core.Result[core.Unit] {
	_, err := d.idb(ctx, []string{"ui", "tap"}, strconv.Itoa(x), strconv.Itoa(y))
	return unit(core.OpTap, err)
}

func (d *Driver) LongPress(ctx context.Context, x, y int) core.Result[core.Unit] {
	seconds := strconv.FormatFloat(d.cfg.LongPressDuration.Seconds(), 'f', -1, 64)
	_, err := d.idb(ctx, []string{"ui", "tap"}, "--duration", seconds, strconv.Itoa(x), strconv.Itoa(y))
	return unit(core.OpLongPress, err)
}

// PressKey sends a HID keycode.
func (d *Driver) PressKey(ctx context.Context, code int) core.Result[core.Unit] {
	_, err := d.idb(ctx, []string{"ui", "key"}, strconv.Itoa(code))
	return unit(core.OpPressKey, err)
}

func (d *Driver) PressButton(ctx context.Context, code int) core.Result[core.Unit] {
	name, ok := buttons[code]
	if !ok {
		return core.Fail[core.Unit](core.Unknown(fmt.Sprintf("unknown button code %d", code)).WithOp(core.OpPressButton))
	}
	_, err := d.idb(ctx, []string{"ui", "button"}, name)
	return unit(core.OpPressButton, err)
}

func (d *Driver) Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) core.Result[core.Unit] {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	_, err := d.idb(ctx, []string{"ui", "swipe"}, "--duration", f(duration), f(xStart), f(yStart), f(xEnd), f(yEnd))
	return unit(core.OpScroll, err)
}

func (d *Driver) Input(ctx context.Context, text string) core.Result[core.Unit] {
	// "--" keeps text starting with a dash from being read as an option.
	_, err := d.idb(ctx, []string{"ui", "text"}, "--", text)
	return unit(core.OpInput, err)
}

// Install stages the app archive in a temp file and installs it.
func (d *Driver) Install(ctx context.Context, app io.Reader) core.Result[core.Unit] {
	tmp, err := os.CreateTemp(d.cfg.TempDir, "app-*.ipa")
	if err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(core.OpInstall))
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, app)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Fail[core.Unit](core.AsFailure(fmt.Errorf("stage app: %w", err)).WithOp(core.OpInstall))
	}
	_, err = d.idb(ctx, []string{"install"}, tmp.Name())
	return unit(core.OpInstall, err)
}

func (d *Driver) Uninstall(ctx context.Context, id core.AppID) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpUninstall)
}

// PullAppState copies the app's data container into dest.
func (d *Driver) PullAppState(ctx context.Context, id core.AppID, dest string) core.Result[core.Unit] {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(core.OpPullAppState))
	}
	_, err := d.idb(ctx, []string{"file", "pull"}, "--bundle-id", string(id), "/", dest)
	return unit(core.OpPullAppState, err)
}

// PushAppState copies src into the root of the app's data container.
func (d *Driver) PushAppState(ctx context.Context, id core.AppID, src string) core.Result[core.Unit] {
	_, err := d.idb(ctx, []string{"file", "push"}, "--bundle-id", string(id), src, "/")
	return unit(core.OpPushAppState, err)
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

// TakeScreenshot writes a PNG to out. idb has no compressed format.
func (d *Driver) TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) core.Result[core.Unit] {
	path := filepath.Join(d.cfg.TempDir, fmt.Sprintf("idb-screenshot-%s-%d.png", d.cfg.UDID, time.Now().UnixNano()))
	defer os.Remove(path)
	if _, err := d.idb(ctx, []string{"screenshot"}, path); err != nil {
		return core.Fail[core.Unit](failure(err).WithOp(core.OpTakeScreenshot))
	}
	if err := copyFile(out, path); err != nil {
		return core.Fail[core.Unit](core.AsFailure(err).WithOp(core.OpTakeScreenshot))
	}
	return core.Done()
}

// StartScreenRecording starts `idb record-video`. Closing the recording stops
// idb and copies the video to out.
func (d *Driver) StartScreenRecording(ctx context.Context, out io.Writer) core.Result[core.ScreenRecording] {
	path := filepath.Join(d.cfg.TempDir, fmt.Sprintf("idb-recording-%s-%d.mp4", d.cfg.UDID, time.Now().UnixNano()))
	proc, err := d.cfg.Starter.Start(ctx, d.cfg.Binary, "record-video", "--udid", d.cfg.UDID, path)
	if err != nil {
		return core.Fail[core.ScreenRecording](core.AsFailure(err).WithOp(core.OpStartScreenRecording))
	}
	logger.Info("screen recording started on %s", d.cfg.UDID)
	return core.Ok[core.ScreenRecording](&recording{proc: proc, path: path, out: out})
}

func (d *Driver) SetLocation(ctx context.Context, latitude, longitude float64) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpSetLocation)
}

func (d *Driver) SetPermissions(ctx context.Context, id core.AppID, permissions map[string]string) core.Result[core.Unit] {
	return core.Abort[core.Unit](backendName, core.OpSetPermissions)
}

func (d *Driver) IsScreenStatic(ctx context.Context) core.Result[bool] {
	return core.Abort[bool](backendName, core.OpIsScreenStatic)
}

func (d *Driver) IsShutdown() bool {
	return !d.connected.Load()
}

// Close disconnects idb from the simulator.
func (d *Driver) Close() {
	if !d.connected.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := d.cfg.Runner.Run(ctx, d.cfg.Binary, "disconnect", d.cfg.UDID); err != nil {
		logger.Warn("idb disconnect %s: %v", d.cfg.UDID, err)
	}
}

// recording is a running record-video process.
type recording struct {
	proc Process
	path string
	out  io.Writer
	once sync.Once
	err  error
}

func (r *recording) Close() error {
	r.once.Do(func() {
		defer os.Remove(r.path)
		if err := r.proc.Interrupt(); err != nil {
			r.err = fmt.Errorf("stop recording: %w", err)
			return
		}
		// record-video exits non-zero on interrupt; the file is what matters
		if err := r.proc.Wait(); err != nil {
			logger.Debug("record-video exited: %v", err)
		}
		r.err = copyFile(r.out, r.path)
	})
	return r.err
}

func copyFile(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(out, f)
	return err
}

func unit(op core.Operation, err error) core.Result[core.Unit] {
	if err != nil {
		return core.Fail[core.Unit](failure(err).WithOp(op))
	}
	return core.Done()
}

func failure(err error) *core.Failure {
	var cmdErr *simulator.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Output != "" {
		return core.Unknown(cmdErr.Output).WithCause(err)
	}
	return core.AsFailure(err)
}

var _ core.Device = (*Driver)(nil)
