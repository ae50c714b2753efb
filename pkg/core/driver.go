package core

import (
	"context"
	"io"
)

// Device is the capability contract every backend driver is measured against.
// Implementations: XCTest companion, idb, simctl, Android driver service and
// the composite iOS device that routes between the first three.
//
// Every runtime failure is returned as a Result. An operation a backend
// structurally cannot perform calls Abort instead.
type Device interface {
	// ID returns the opaque device identifier
	ID() string

	// Open prepares the backend; the session is usable only after it succeeds
	Open(ctx context.Context) Result[Unit]

	DeviceInfo(ctx context.Context) Result[DeviceInfo]

	// ContentDescriptor captures a fresh view hierarchy
	ContentDescriptor(ctx context.Context) Result[*ViewNode]

	Tap(ctx context.Context, x, y int) Result[Unit]
	LongPress(ctx context.Context, x, y int) Result[Unit]
	PressKey(ctx context.Context, code int) Result[Unit]
	PressButton(ctx context.Context, code int) Result[Unit]
	Scroll(ctx context.Context, xStart, yStart, xEnd, yEnd, duration float64) Result[Unit]
	Input(ctx context.Context, text string) Result[Unit]

	// App management
	Install(ctx context.Context, app io.Reader) Result[Unit]
	Uninstall(ctx context.Context, id AppID) Result[Unit]
	PullAppState(ctx context.Context, id AppID, dest string) Result[Unit]
	PushAppState(ctx context.Context, id AppID, src string) Result[Unit]
	ClearAppState(ctx context.Context, id AppID) Result[Unit]
	ClearKeychain(ctx context.Context) Result[Unit]
	Launch(ctx context.Context, id AppID) Result[Unit]
	Stop(ctx context.Context, id AppID) Result[Unit]
	OpenLink(ctx context.Context, link string) Result[Unit]

	// Media
	TakeScreenshot(ctx context.Context, out io.Writer, compressed bool) Result[Unit]
	StartScreenRecording(ctx context.Context, out io.Writer) Result[ScreenRecording]

	SetLocation(ctx context.Context, latitude, longitude float64) Result[Unit]
	SetPermissions(ctx context.Context, id AppID, permissions map[string]string) Result[Unit]
	IsScreenStatic(ctx context.Context) Result[bool]

	// IsShutdown reports backend liveness; it is safe to call after Close
	IsShutdown() bool

	// Close releases the backend; it never fails
	Close()
}

// ScreenRecording is an in-progress recording started by StartScreenRecording.
// Close stops it and flushes the encoded video to the writer it was started with.
type ScreenRecording interface {
	io.Closer
}

// TextEraser is implemented by backends that can delete characters from the
// focused text field.
type TextEraser interface {
	EraseText(ctx context.Context, n int) Result[Unit]
}

// AppID is a bundle identifier (iOS) or package name (Android).
// Equality is exact-string; no normalization.
type AppID string

// DeviceInfo contains device and screen details
type DeviceInfo struct {
	Platform     string `json:"platform"` // ios, android
	DeviceID     string `json:"deviceId"`
	WidthPixels  int    `json:"widthPixels"`
	HeightPixels int    `json:"heightPixels"`
	WidthPoints  int    `json:"widthPoints,omitempty"`
	HeightPoints int    `json:"heightPoints,omitempty"`
}

// ViewNode is one element of a view hierarchy. Each node exclusively owns
// its children; trees are rebuilt for every capture and never shared.
type ViewNode struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Bounds     Bounds            `json:"bounds"`
	Enabled    bool              `json:"enabled"`
	Focused    bool              `json:"focused,omitempty"`
	Selected   bool              `json:"selected,omitempty"`
	Children   []ViewNode        `json:"children,omitempty"`
}

// Attr returns a node attribute or "" if missing.
func (n *ViewNode) Attr(key string) string {
	return n.Attributes[key]
}

// Walk visits n and every descendant depth-first until fn returns false.
func (n *ViewNode) Walk(fn func(*ViewNode) bool) bool {
	if !fn(n) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the tree rooted at n.
func (n *ViewNode) Count() int {
	count := 0
	n.Walk(func(*ViewNode) bool {
		count++
		return true
	})
	return count
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
