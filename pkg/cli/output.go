package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printSetupStep(w io.Writer, msg string) {
	fmt.Fprintf(w, "  %s⏳%s %s\n", color(colorCyan), color(colorReset), msg)
}

func printSetupSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

func printFailure(w io.Writer, f *core.Failure) {
	fmt.Fprintf(w, "  %s✗%s %s (%s)\n", color(colorRed), color(colorReset), f.Error(), f.Kind)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printHierarchyCSV writes one row per node: depth, bounds, flags and the
// node's attributes as key=value pairs in key order.
func printHierarchyCSV(w io.Writer, root *core.ViewNode) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"depth", "x", "y", "width", "height", "enabled", "attributes"}); err != nil {
		return err
	}
	var walk func(n *core.ViewNode, depth int) error
	walk = func(n *core.ViewNode, depth int) error {
		b := n.Bounds
		row := []string{
			strconv.Itoa(depth),
			strconv.Itoa(b.X), strconv.Itoa(b.Y), strconv.Itoa(b.Width), strconv.Itoa(b.Height),
			strconv.FormatBool(n.Enabled),
			formatAttributes(n.Attributes),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
		for i := range n.Children {
			if err := walk(&n.Children[i], depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func formatAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ";"
		}
		out += k + "=" + attrs[k]
	}
	return out
}
