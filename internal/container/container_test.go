package container

import (
	"errors"
	"testing"
)

func TestNewTreeHasStandardChildren(t *testing.T) {
	root := NewTree("playcore")
	for _, name := range []string{Playback, Overlay, Extensions} {
		child := root.Child(name)
		if child == nil {
			t.Fatalf("missing child %s", name)
		}
		if child.Parent() != root {
			t.Fatalf("child %s has wrong parent", name)
		}
	}
}

func TestAppendMovesNodeAndClearDetaches(t *testing.T) {
	root := NewTree("root")
	leaf := root.Child(Playback).Append(New("surface"))
	root.Child(Overlay).Append(leaf)
	if root.Child(Playback).Child("surface") != nil {
		t.Fatalf("node must leave its previous parent")
	}
	if leaf.Parent() != root.Child(Overlay) {
		t.Fatalf("node not moved")
	}

	leaf.Set("source", "a.wav")
	if v, ok := leaf.Attr("source"); !ok || v != "a.wav" {
		t.Fatalf("attribute lost")
	}

	root.Clear()
	if len(root.Children()) != 0 {
		t.Fatalf("clear must remove all children")
	}
	if leaf.Parent() != nil {
		t.Fatalf("cleared leaf must be detached")
	}
}

func TestMemoryHost(t *testing.T) {
	host := &MemoryHost{}
	root := New("root")
	if err := host.Attach(root); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := host.Attach(root); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("expected ErrAlreadyAttached, got %v", err)
	}
	host.Detach(root)
	host.Detach(root)
	if len(host.Roots()) != 0 {
		t.Fatalf("root still attached")
	}
}
