package idb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/simulator"
)

const udid = "SIM-0001"

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	handle func(args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.handle == nil {
		return nil, nil
	}
	return f.handle(args)
}

func (f *fakeRunner) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls[len(f.calls)-1], " ")
}

type fakeProcess struct {
	path        string
	interrupted bool
}

func (p *fakeProcess) Interrupt() error {
	p.interrupted = true
	return os.WriteFile(p.path, []byte("mp4-bytes"), 0o644)
}

func (p *fakeProcess) Wait() error {
	return errors.New("signal: interrupt")
}

type fakeStarter struct {
	args []string
	proc *fakeProcess
}

func (s *fakeStarter) Start(_ context.Context, name string, args ...string) (Process, error) {
	s.args = append([]string{name}, args...)
	s.proc = &fakeProcess{path: args[len(args)-1]}
	return s.proc, nil
}

func newDriver(t *testing.T, run *fakeRunner) *Driver {
	return New(Config{UDID: udid, Runner: run, Starter: &fakeStarter{}, TempDir: t.TempDir()})
}

func TestOpenClose(t *testing.T) {
	run := &fakeRunner{}
	d := newDriver(t, run)
	assert.True(t, d.IsShutdown())

	require.True(t, d.Open(context.Background()).IsOk())
	assert.Equal(t, "idb connect "+udid, run.last())
	assert.False(t, d.IsShutdown())

	d.Close()
	assert.Equal(t, "idb disconnect "+udid, run.last())
	assert.True(t, d.IsShutdown())

	// second close is a no-op
	d.Close()
	assert.Len(t, run.calls, 2)
}

func TestOpen_Failure(t *testing.T) {
	run := &fakeRunner{handle: func([]string) ([]byte, error) {
		return nil, &simulator.CommandError{Command: "idb connect", Output: "companion not found", Err: errors.New("exit status 1")}
	}}
	d := newDriver(t, run)

	f := d.Open(context.Background()).Failure()
	require.NotNil(t, f)
	assert.Equal(t, core.KindUnknown, f.Kind)
	assert.Equal(t, "companion not found", f.Raw)
	assert.True(t, d.IsShutdown())
}

func TestDeviceInfo(t *testing.T) {
	run := &fakeRunner{handle: func([]string) ([]byte, error) {
		return []byte(`{"udid":"SIM-0001","screen_dimensions":{"width":1179,"height":2556,"density":3.0,"width_points":393,"height_points":852}}`), nil
	}}
	info, err := newDriver(t, run).DeviceInfo(context.Background()).Get()
	require.NoError(t, err)
	assert.Equal(t, "idb describe --udid "+udid+" --json", run.last())
	assert.Equal(t, core.DeviceInfo{
		Platform:     "ios",
		DeviceID:     udid,
		WidthPixels:  1179,
		HeightPixels: 2556,
		WidthPoints:  393,
		HeightPoints: 852,
	}, info)
}

func TestContentDescriptor(t *testing.T) {
	run := &fakeRunner{handle: func([]string) ([]byte, error) {
		return []byte(`[
			{"AXLabel":"Settings","type":"Application","enabled":true,"frame":{"x":0,"y":0,"width":393,"height":852}},
			{"AXLabel":"Login","AXUniqueId":"login_button","AXValue":null,"type":"Button","enabled":true,"frame":{"x":20,"y":700,"width":353,"height":44}},
			{"AXLabel":"","AXValue":"hello","type":"TextField","enabled":false,"frame":{"x":20,"y":100,"width":353,"height":30}}
		]`), nil
	}}
	root, err := newDriver(t, run).ContentDescriptor(context.Background()).Get()
	require.NoError(t, err)
	assert.Equal(t, "idb ui describe-all --udid "+udid+" --json", run.last())

	require.Len(t, root.Children, 3)
	assert.Equal(t, core.Bounds{X: 0, Y: 0, Width: 393, Height: 852}, root.Bounds)

	login := root.Children[1]
	assert.Equal(t, "Login", login.Attr("accessibilityText"))
	assert.Equal(t, "login_button", login.Attr("resource-id"))
	assert.Equal(t, "Button", login.Attr("elementType"))
	assert.Empty(t, login.Attr("value"))
	assert.Equal(t, core.Bounds{X: 20, Y: 700, Width: 353, Height: 44}, login.Bounds)

	field := root.Children[2]
	assert.Equal(t, "hello", field.Attr("value"))
	assert.Empty(t, field.Attr("accessibilityText"))
	assert.False(t, field.Enabled)
}

func TestContentDescriptor_BadOutput(t *testing.T) {
	run := &fakeRunner{handle: func([]string) ([]byte, error) { return []byte("not json"), nil }}
	f := newDriver(t, run).ContentDescriptor(context.Background()).Failure()
	require.NotNil(t, f)
	assert.Equal(t, core.KindUnknown, f.Kind)
	assert.Equal(t, "not json", f.Raw)
}

func TestGestures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(d *Driver) core.Result[core.Unit]
		want string
	}{
		{"tap", func(d *Driver) core.Result[core.Unit] { return d.Tap(ctx, 10, 20) },
			"idb ui tap --udid " + udid + " 10 20"},
		{"longPress", func(d *Driver) core.Result[core.Unit] { return d.LongPress(ctx, 10, 20) },
			"idb ui tap --udid " + udid + " --duration 3 10 20"},
		{"pressKey", func(d *Driver) core.Result[core.Unit] { return d.PressKey(ctx, 42) },
			"idb ui key --udid " + udid + " 42"},
		{"pressButton", func(d *Driver) core.Result[core.Unit] { return d.PressButton(ctx, 2) },
			"idb ui button --udid " + udid + " HOME"},
		{"scroll", func(d *Driver) core.Result[core.Unit] { return d.Scroll(ctx, 100, 600, 100, 200.5, 0.5) },
			"idb ui swipe --udid " + udid + " --duration 0.5 100 600 100 200.5"},
		{"input", func(d *Driver) core.Result[core.Unit] { return d.Input(ctx, "hello world") },
			"idb ui text --udid " + udid + " -- hello world"},
		{"input leading dash", func(d *Driver) core.Result[core.Unit] { return d.Input(ctx, "-5 degrees") },
			"idb ui text --udid " + udid + " -- -5 degrees"},
		{"pushAppState", func(d *Driver) core.Result[core.Unit] { return d.PushAppState(ctx, "com.example.app", "/tmp/state") },
			"idb file push --udid " + udid + " --bundle-id com.example.app /tmp/state /"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &fakeRunner{}
			res := tt.call(newDriver(t, run))
			require.True(t, res.IsOk(), "%v", res.Err())
			assert.Equal(t, tt.want, run.last())
		})
	}
}

func TestPressButton_Unknown(t *testing.T) {
	run := &fakeRunner{}
	f := newDriver(t, run).PressButton(context.Background(), 99).Failure()
	require.NotNil(t, f)
	assert.Equal(t, core.KindUnknown, f.Kind)
	assert.Empty(t, run.calls)
}

func TestPullAppState_CreatesDest(t *testing.T) {
	run := &fakeRunner{}
	dest := t.TempDir() + "/state/out"
	require.True(t, newDriver(t, run).PullAppState(context.Background(), "com.example.app", dest).IsOk())
	assert.DirExists(t, dest)
	assert.Equal(t, "idb file pull --udid "+udid+" --bundle-id com.example.app / "+dest, run.last())
}

func TestInstall_StagesArchive(t *testing.T) {
	var staged []byte
	run := &fakeRunner{handle: func(args []string) ([]byte, error) {
		b, err := os.ReadFile(args[len(args)-1])
		staged = b
		return nil, err
	}}
	d := newDriver(t, run)

	require.True(t, d.Install(context.Background(), strings.NewReader("zip-bytes")).IsOk())
	assert.Equal(t, "zip-bytes", string(staged))

	entries, err := os.ReadDir(d.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged archive should be removed")
}

func TestTakeScreenshot(t *testing.T) {
	run := &fakeRunner{handle: func(args []string) ([]byte, error) {
		return nil, os.WriteFile(args[len(args)-1], []byte("png-bytes"), 0o644)
	}}
	var out bytes.Buffer
	require.True(t, newDriver(t, run).TakeScreenshot(context.Background(), &out, true).IsOk())
	assert.Equal(t, "png-bytes", out.String())
	assert.True(t, strings.HasPrefix(run.last(), "idb screenshot --udid "+udid+" "))
}

func TestScreenRecording(t *testing.T) {
	starter := &fakeStarter{}
	d := New(Config{UDID: udid, Runner: &fakeRunner{}, Starter: starter, TempDir: t.TempDir()})

	var out bytes.Buffer
	rec, err := d.StartScreenRecording(context.Background(), &out).Get()
	require.NoError(t, err)
	assert.Equal(t, []string{"idb", "record-video", "--udid", udid}, starter.args[:4])

	require.NoError(t, rec.Close())
	assert.True(t, starter.proc.interrupted)
	assert.Equal(t, "mp4-bytes", out.String())
	assert.NoFileExists(t, starter.proc.path)

	// closing twice does not copy again
	require.NoError(t, rec.Close())
	assert.Equal(t, "mp4-bytes", out.String())
}

func TestUnsupportedOperationsAbort(t *testing.T) {
	d := newDriver(t, &fakeRunner{})
	ctx := context.Background()
	assert.Panics(t, func() { d.Launch(ctx, "com.example.app") })
	assert.Panics(t, func() { d.SetLocation(ctx, 1, 2) })
	assert.Panics(t, func() { d.IsScreenStatic(ctx) })
}

func TestLongPressDuration(t *testing.T) {
	run := &fakeRunner{}
	d := New(Config{UDID: udid, Runner: run, LongPressDuration: 1500 * time.Millisecond})
	require.True(t, d.LongPress(context.Background(), 1, 2).IsOk())
	assert.Equal(t, "idb ui tap --udid "+udid+" --duration 1.5 1 2", run.last())
}
