package hstore

import (
	"errors"
	"testing"
)

func TestLockGuard(t *testing.T) {
	var l Lock
	if ok, err := l.Guard("op"); !ok || err != nil {
		t.Fatalf("Guard on unlocked = %v, %v", ok, err)
	}

	l.SetReadOnlyFlag(true)
	ok, err := l.Guard("op")
	if ok {
		t.Fatalf("Guard on locked allowed the mutation")
	}
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Guard err = %v, want ErrReadOnly", err)
	}

	l.SetPolicy(LockWarn)
	ok, err = l.Guard("op")
	if ok || err != nil {
		t.Fatalf("Guard under warn policy = %v, %v; want refused without error", ok, err)
	}
}

// lockNode is a minimal lockable tree for propagation tests.
type lockNode struct {
	Lock
	children map[string]*lockNode
}

func (n *lockNode) ListGroups() []string {
	return sortedKeys(n.children)
}

func (n *lockNode) ListNodes() []string { return nil }

func (n *lockNode) GroupChild(name string) any {
	if c := n.children[name]; c != nil {
		return c
	}
	return nil
}

func (n *lockNode) SetReadOnly(ro bool) {
	n.SetReadOnlyFlag(ro)
	SetReadOnlyChildren(n, ro)
}

func TestLockPropagation(t *testing.T) {
	leaf := &lockNode{}
	mid := &lockNode{children: map[string]*lockNode{"leaf": leaf}}
	root := &lockNode{children: map[string]*lockNode{"mid": mid}}

	root.SetReadOnly(true)
	if !root.ReadOnly() || !mid.ReadOnly() || !leaf.ReadOnly() {
		t.Fatalf("read-only flag did not propagate: %v %v %v", root.ReadOnly(), mid.ReadOnly(), leaf.ReadOnly())
	}
	root.SetReadOnly(false)
	if leaf.ReadOnly() {
		t.Fatalf("unlock did not propagate")
	}
}

func TestUnlocked(t *testing.T) {
	n := &lockNode{}
	n.SetReadOnly(true)

	err := Unlocked(n, func() error {
		if n.ReadOnly() {
			t.Fatalf("still read-only inside Unlocked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unlocked failed: %v", err)
	}
	if !n.ReadOnly() {
		t.Fatalf("not re-locked after Unlocked")
	}
}

func TestUnlockedRelocksOnPanic(t *testing.T) {
	n := &lockNode{}
	n.SetReadOnly(true)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		Unlocked(n, func() error { panic("boom") })
	}()
	if !n.ReadOnly() {
		t.Fatalf("not re-locked after panic")
	}
}

func TestLockPolicyYAML(t *testing.T) {
	for _, p := range []LockPolicy{LockError, LockWarn} {
		v, err := p.MarshalYAML()
		if err != nil {
			t.Fatalf("MarshalYAML failed: %v", err)
		}
		if v != p.String() {
			t.Fatalf("MarshalYAML = %v, want %v", v, p.String())
		}
	}
}
