package simulator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeRunner records commands and answers them from a handler.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []string
	handle func(cmd string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return nil, nil
	}
	return handle(cmd)
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRunner) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// deviceList renders simctl list JSON with one device per runtime entry.
func deviceList(devices map[string][][3]string) []byte {
	var b strings.Builder
	b.WriteString(`{"devices":{`)
	first := true
	for runtime, devs := range devices {
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, "%q:[", runtime)
		for i, d := range devs {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `{"name":%q,"udid":%q,"state":%q,"isAvailable":true}`, d[0], d[1], d[2])
		}
		b.WriteString("]")
	}
	b.WriteString("}}")
	return []byte(b.String())
}

func errCommand(output string) error {
	return &CommandError{Command: "xcrun simctl", Output: output, Err: fmt.Errorf("exit status 1")}
}
