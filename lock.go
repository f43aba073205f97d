package hstore

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// LockPolicy selects how a mutation attempted on a read-only object is
// reported. Either way the mutation is refused and the object is unchanged;
// the policy only controls how loudly.
type LockPolicy int

const (
	// LockError makes refused mutations return an error wrapping ErrReadOnly.
	LockError LockPolicy = iota
	// LockWarn logs a warning instead; the refused operation reports success.
	LockWarn
)

func (p LockPolicy) String() string {
	switch p {
	case LockError:
		return "error"
	case LockWarn:
		return "warn"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func (p LockPolicy) MarshalYAML() (any, error) {
	return p.String(), nil
}

func (p *LockPolicy) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "error":
		*p = LockError
	case "warn":
		*p = LockWarn
	default:
		return fmt.Errorf("invalid lock policy %q", s)
	}
	return nil
}

// Lockable is anything carrying a recursive read-only flag.
type Lockable interface {
	ReadOnly() bool
	SetReadOnly(bool)
}

// HasGroups is the capability of exposing a two-kind hierarchical namespace:
// group children (themselves hierarchical) and terminal node children. Lock
// propagation and generic tree walking consume it polymorphically.
type HasGroups interface {
	ListGroups() []string
	ListNodes() []string
	// GroupChild returns the named group child for propagation lookup.
	GroupChild(name string) any
}

// ListAllOf returns group and node names of h combined.
func ListAllOf(h HasGroups) []string {
	return append(h.ListNodes(), h.ListGroups()...)
}

// Lock is the mutation guard composed into container types. It owns the
// read-only flag and the reporting policy; the owning type wraps each of its
// mutating methods in a Guard call.
type Lock struct {
	readOnly bool
	policy   LockPolicy
}

func (l *Lock) ReadOnly() bool {
	return l.readOnly
}

// SetReadOnlyFlag flips only this object's flag. Owners that have lockable
// group children implement SetReadOnly on top of this plus
// SetReadOnlyChildren for recursion.
func (l *Lock) SetReadOnlyFlag(ro bool) {
	l.readOnly = ro
}

func (l *Lock) Policy() LockPolicy {
	return l.policy
}

func (l *Lock) SetPolicy(p LockPolicy) {
	l.policy = p
}

// Guard reports whether a mutation may proceed. When the object is read-only
// it refuses: with an error under LockError, with a logged warning (and a nil
// error, so the caller's operation reports success without mutating) under
// LockWarn.
func (l *Lock) Guard(op string) (ok bool, err error) {
	if !l.readOnly {
		return true, nil
	}
	if l.policy == LockWarn {
		slog.Warn("refusing mutation of read-only object", "op", op)
		return false, nil
	}
	return false, fmt.Errorf("%s: %w", op, ErrReadOnly)
}

// SetReadOnlyChildren applies ro to every group child of h that is itself
// lockable. Recursion happens through the children's own SetReadOnly.
func SetReadOnlyChildren(h HasGroups, ro bool) {
	for _, name := range h.ListGroups() {
		if l, ok := h.GroupChild(name).(Lockable); ok {
			l.SetReadOnly(ro)
		}
	}
}

// Unlocked runs fn with v unlocked and restores the previous lock state on
// all exit paths, including panics.
func Unlocked(v Lockable, fn func() error) error {
	was := v.ReadOnly()
	v.SetReadOnly(false)
	defer v.SetReadOnly(was)
	return fn()
}
