package container

import (
	"errors"
	"testing"

	"github.com/andreyvit/hstore"
)

func nestedFixture(t *testing.T) *Container {
	t.Helper()
	c, err := Wrap(map[string]any{
		"next": []any{0, map[string]any{"depth": 23}},
	})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	return c
}

func TestSlashPath(t *testing.T) {
	c := nestedFixture(t)
	v, err := c.Get("next/1/depth")
	if err != nil {
		t.Fatalf("Get(next/1/depth) failed: %v", err)
	}
	if v != 23 {
		t.Fatalf("Get(next/1/depth) = %v, want 23", v)
	}

	if _, err := c.Get("next/0/depth"); err == nil {
		t.Fatalf("descending through a terminal succeeded")
	}
	if _, err := c.Get("next/9"); !errors.Is(err, hstore.ErrOutOfRange) {
		t.Fatalf("Get(next/9) err = %v", err)
	}
}

func TestSearch(t *testing.T) {
	c := nestedFixture(t)

	v, err := c.Search("depth", true)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if v != 23 {
		t.Fatalf("Search(depth) = %v, want 23", v)
	}

	if _, err := c.Search("missing", true); !errors.Is(err, hstore.ErrNotFound) {
		t.Fatalf("Search(missing) err = %v", err)
	}
	if _, err := c.Search("a/b", true); err == nil {
		t.Fatalf("Search with a path succeeded")
	}
}

func TestSearchAmbiguity(t *testing.T) {
	c := New()
	g1, _ := c.CreateGroup("one")
	g2, _ := c.CreateGroup("two")
	ensure(t, g1.Set("dup", 1))
	ensure(t, g2.Set("dup", 2))

	// First hit wins in depth-first order.
	v, err := c.Search("dup", true)
	if err != nil || v != 1 {
		t.Fatalf("Search(stop) = %v, %v", v, err)
	}

	if _, err := c.Search("dup", false); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("Search(all) err = %v, want ErrAmbiguous", err)
	}

	// A key bound in exactly one place is fine either way.
	ensure(t, g2.Set("only", 3))
	if v, err := c.Search("only", false); err != nil || v != 3 {
		t.Fatalf("Search(only) = %v, %v", v, err)
	}
}

func TestEllipsisPath(t *testing.T) {
	c := nestedFixture(t)

	v, err := c.Get(".../depth")
	if err != nil {
		t.Fatalf("Get(.../depth) failed: %v", err)
	}
	if v != 23 {
		t.Fatalf("Get(.../depth) = %v", v)
	}

	// The searched key may itself be a group, with the rest of the path
	// resolved inside it.
	ensure(t, c.Set("outer/inner/leaf", 7))
	v, err = c.Get(".../inner/leaf")
	if err != nil {
		t.Fatalf("Get(.../inner/leaf) failed: %v", err)
	}
	if v != 7 {
		t.Fatalf("Get(.../inner/leaf) = %v", v)
	}

	if _, err := c.Get("..."); err == nil {
		t.Fatalf("bare ellipsis succeeded")
	}
	if err := c.Set(".../depth", 1); err == nil {
		t.Fatalf("assigning through a search path succeeded")
	}
}

func TestAutoVivification(t *testing.T) {
	c := New()
	if err := c.Set("a/b/c", 1); err != nil {
		t.Fatalf("Set(a/b/c) failed: %v", err)
	}
	v, err := c.Get("a/b/c")
	if err != nil || v != 1 {
		t.Fatalf("Get(a/b/c) = %v, %v", v, err)
	}
	if _, ok := mustGet(t, c, "a").(*Container); !ok {
		t.Fatalf("intermediate a is not a container")
	}

	// Plain keyed set never vivifies; only path sets do.
	c2 := New()
	if _, err := c2.Get("a/b"); err == nil {
		t.Fatalf("Get on empty path succeeded")
	}
	if c2.Len() != 0 {
		t.Fatalf("failed Get vivified")
	}
}

func TestPathSetHonorsChildLock(t *testing.T) {
	parent := New()
	child := New()
	ensure(t, child.Set("x", 1))
	ensure(t, parent.Set("child", child))
	child.SetReadOnly(true)

	if err := parent.Set("child/x", 2); !errors.Is(err, hstore.ErrReadOnly) {
		t.Fatalf("Set through a locked child err = %v", err)
	}
	if v, _ := child.Get("x"); v != 1 {
		t.Fatalf("locked child mutated: x = %v", v)
	}

	// Warn policy refuses silently, still without mutating.
	child.SetPolicy(hstore.LockWarn)
	if err := parent.Set("child/y", 3); err != nil {
		t.Fatalf("Set under warn policy err = %v", err)
	}
	if _, err := child.Get("y"); !errors.Is(err, hstore.ErrNotFound) {
		t.Fatalf("warn policy allowed a mutation: %v", err)
	}
}

func TestGetDefault(t *testing.T) {
	c := FromSlice(1)
	if v, err := c.GetDefault("missing", 42); err != nil || v != 42 {
		t.Fatalf("GetDefault(missing) = %v, %v", v, err)
	}
	if v, err := c.GetDefault(0, 42); err != nil || v != 1 {
		t.Fatalf("GetDefault(0) = %v, %v", v, err)
	}
	if v, err := c.GetDefault(7, 42); err != nil || v != 42 {
		t.Fatalf("GetDefault(7) = %v, %v", v, err)
	}
}

func mustGet(t *testing.T, c *Container, key any) any {
	t.Helper()
	v, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get(%v) failed: %v", key, err)
	}
	return v
}
