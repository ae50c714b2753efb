package xctest

import (
	"encoding/json"
	"strconv"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// axFrame is an element frame in points.
type axFrame struct {
	X      float64 `json:"X"`
	Y      float64 `json:"Y"`
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
}

// axElement is one node of the /subTree response.
type axElement struct {
	Identifier       string      `json:"identifier"`
	Label            string      `json:"label"`
	Title            string      `json:"title"`
	Value            *string     `json:"value"`
	PlaceholderValue *string     `json:"placeholderValue"`
	ElementType      int         `json:"elementType"`
	Frame            axFrame     `json:"frame"`
	Enabled          bool        `json:"enabled"`
	Selected         bool        `json:"selected"`
	HasFocus         bool        `json:"hasFocus"`
	Children         []axElement `json:"children"`
}

// parseHierarchy decodes a /subTree body into a fresh owned tree.
func parseHierarchy(body []byte) (*core.ViewNode, error) {
	var root axElement
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}
	node := root.toNode()
	return &node, nil
}

func (e *axElement) toNode() core.ViewNode {
	attrs := map[string]string{
		"accessibilityText": e.Label,
		"title":             e.Title,
		"resource-id":       e.Identifier,
		"elementType":       strconv.Itoa(e.ElementType),
	}
	text := e.Label
	if e.Value != nil {
		attrs["value"] = *e.Value
		if text == "" {
			text = *e.Value
		}
	}
	if text == "" {
		text = e.Title
	}
	attrs["text"] = text
	if e.PlaceholderValue != nil {
		attrs["hintText"] = *e.PlaceholderValue
	}

	node := core.ViewNode{
		Attributes: attrs,
		Bounds: core.Bounds{
			X:      int(e.Frame.X),
			Y:      int(e.Frame.Y),
			Width:  int(e.Frame.Width),
			Height: int(e.Frame.Height),
		},
		Enabled:  e.Enabled,
		Selected: e.Selected,
		Focused:  e.HasFocus,
	}
	if len(e.Children) > 0 {
		node.Children = make([]core.ViewNode, len(e.Children))
		for i := range e.Children {
			node.Children[i] = e.Children[i].toNode()
		}
	}
	return node
}
