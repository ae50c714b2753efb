package idb

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// describeOutput is the subset of `idb describe --json` we read.
type describeOutput struct {
	UDID             string `json:"udid"`
	ScreenDimensions struct {
		Width        int     `json:"width"`
		Height       int     `json:"height"`
		Density      float64 `json:"density"`
		WidthPoints  int     `json:"width_points"`
		HeightPoints int     `json:"height_points"`
	} `json:"screen_dimensions"`
}

func parseDescribe(udid string, data []byte) (core.DeviceInfo, error) {
	var out describeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return core.DeviceInfo{}, fmt.Errorf("failed to parse idb describe output: %w", err)
	}
	dims := out.ScreenDimensions
	return core.DeviceInfo{
		Platform:     "ios",
		DeviceID:     udid,
		WidthPixels:  dims.Width,
		HeightPixels: dims.Height,
		WidthPoints:  dims.WidthPoints,
		HeightPoints: dims.HeightPoints,
	}, nil
}

// axNode is one element of `idb ui describe-all --json`.
type axNode struct {
	Label    *string `json:"AXLabel"`
	Value    *string `json:"AXValue"`
	UniqueID *string `json:"AXUniqueId"`
	Type     string  `json:"type"`
	Role     string  `json:"role"`
	Title    *string `json:"title"`
	Enabled  bool    `json:"enabled"`
	Frame    struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"frame"`
}

// parseDescribeAll turns idb's flat accessibility list into a root node whose
// children are the listed elements. The root spans all of them.
func parseDescribeAll(data []byte) (*core.ViewNode, error) {
	var nodes []axNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse idb describe-all output: %w", err)
	}

	root := &core.ViewNode{Enabled: true, Children: make([]core.ViewNode, 0, len(nodes))}
	minX, minY, maxX, maxY := math.MaxInt, math.MaxInt, 0, 0
	for _, n := range nodes {
		b := core.Bounds{
			X:      int(n.Frame.X),
			Y:      int(n.Frame.Y),
			Width:  int(n.Frame.Width),
			Height: int(n.Frame.Height),
		}
		minX, minY = min(minX, b.X), min(minY, b.Y)
		maxX, maxY = max(maxX, b.X+b.Width), max(maxY, b.Y+b.Height)

		attrs := map[string]string{"elementType": n.Type}
		setAttr(attrs, "accessibilityText", n.Label)
		setAttr(attrs, "text", n.Label)
		setAttr(attrs, "value", n.Value)
		setAttr(attrs, "resource-id", n.UniqueID)
		setAttr(attrs, "title", n.Title)
		root.Children = append(root.Children, core.ViewNode{
			Attributes: attrs,
			Bounds:     b,
			Enabled:    n.Enabled,
		})
	}
	if len(nodes) > 0 {
		root.Bounds = core.Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	}
	return root, nil
}

func setAttr(attrs map[string]string, key string, v *string) {
	if v != nil && *v != "" {
		attrs[key] = *v
	}
}
