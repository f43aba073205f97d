package hstore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// DictConvertible is the dict-mirror protocol: a hierarchy-preserving
// round trip through plain nested maps instead of the hierarchical store.
// Implementations must keep insertion order reconstructible (containers carry
// an explicit KEY_ORDER entry for this) and preserve the read-only flag.
type DictConvertible interface {
	TypeTag() string
	ToDict() (map[string]any, error)
	FromDict(d map[string]any) error
}

type snapshotEnvelope struct {
	Type string         `cbor:"type"`
	Dict map[string]any `cbor:"dict"`
}

// Snapshot serializes v into one self-contained binary blob, suitable for
// any dict-capable medium.
func Snapshot(v DictConvertible) ([]byte, error) {
	d, err := v.ToDict()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&snapshotEnvelope{Type: v.TypeTag(), Dict: d})
}

// Restore rebuilds v from a Snapshot blob, verifying the type tag first.
func Restore(data []byte, v DictConvertible) error {
	var env snapshotEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Corruptf("snapshot", err, "invalid snapshot blob")
	}
	if env.Type != v.TypeTag() {
		return fmt.Errorf("snapshot holds %q, cannot restore into %q", env.Type, v.TypeTag())
	}
	return v.FromDict(env.Dict)
}
