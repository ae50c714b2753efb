package android

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// parseHierarchy converts a UIAutomator window dump into a view tree.
// Both dump styles are accepted: <node class="..."> elements and elements
// named after the widget class. The root is the <hierarchy> element itself.
func parseHierarchy(data string) (*core.ViewNode, error) {
	decoder := xml.NewDecoder(strings.NewReader(data))

	var parseChildren func() ([]core.ViewNode, error)
	parseChildren = func() ([]core.ViewNode, error) {
		var children []core.ViewNode
		for {
			token, err := decoder.Token()
			if err != nil {
				return nil, err
			}
			switch t := token.(type) {
			case xml.StartElement:
				node := elementNode(t)
				node.Children, err = parseChildren()
				if err != nil {
					return nil, err
				}
				children = append(children, node)
			case xml.EndElement:
				return children, nil
			}
		}
	}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("invalid view hierarchy: no hierarchy element found")
		}
		if err != nil {
			return nil, fmt.Errorf("invalid view hierarchy: %w", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "hierarchy" {
			return nil, fmt.Errorf("invalid view hierarchy: unexpected root <%s>", start.Name.Local)
		}
		children, err := parseChildren()
		if err != nil {
			return nil, fmt.Errorf("invalid view hierarchy: %w", err)
		}
		root := &core.ViewNode{Enabled: true, Children: children}
		if len(children) > 0 {
			root.Bounds = children[0].Bounds
		}
		return root, nil
	}
}

func elementNode(t xml.StartElement) core.ViewNode {
	node := core.ViewNode{
		Attributes: map[string]string{"class": t.Name.Local},
	}
	for _, attr := range t.Attr {
		switch attr.Name.Local {
		case "bounds":
			node.Bounds = parseBounds(attr.Value)
		case "enabled":
			node.Enabled = attr.Value == "true"
		case "selected":
			node.Selected = attr.Value == "true"
		case "focused":
			node.Focused = attr.Value == "true"
		case "content-desc":
			if attr.Value != "" {
				node.Attributes["accessibilityText"] = attr.Value
			}
		case "hint":
			if attr.Value != "" {
				node.Attributes["hintText"] = attr.Value
			}
		case "text", "resource-id", "class", "package", "checked", "clickable", "scrollable", "password":
			if attr.Value != "" {
				node.Attributes[attr.Name.Local] = attr.Value
			}
		}
	}
	return node
}

func parseBounds(s string) core.Bounds {
	// Format: [x1,y1][x2,y2]
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	x1, _ := strconv.Atoi(parts[0])
	y1, _ := strconv.Atoi(parts[1])
	x2, _ := strconv.Atoi(parts[2])
	y2, _ := strconv.Atoi(parts[3])

	return core.Bounds{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}
