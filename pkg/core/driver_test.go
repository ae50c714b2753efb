package core

import (
	"testing"
)

func TestViewNode_WalkAndCount(t *testing.T) {
	root := ViewNode{
		Attributes: map[string]string{"text": "root"},
		Children: []ViewNode{
			{Attributes: map[string]string{"text": "a"}},
			{
				Attributes: map[string]string{"text": "b"},
				Children:   []ViewNode{{Attributes: map[string]string{"text": "c"}}},
			},
		},
	}

	if got := root.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}

	var visited []string
	root.Walk(func(n *ViewNode) bool {
		visited = append(visited, n.Attr("text"))
		return n.Attr("text") != "b"
	})
	want := []string{"root", "a", "b"}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %q, want %q", i, visited[i], want[i])
		}
	}
}

func TestViewNode_ChildrenAreOwned(t *testing.T) {
	child := ViewNode{Attributes: map[string]string{"text": "child"}}
	root := ViewNode{Children: []ViewNode{child}}

	child.Bounds.X = 99
	if root.Children[0].Bounds.X != 0 {
		t.Error("mutating the original child should not affect the tree")
	}
}
