package hstore

import "strings"

// Storable is the serialization contract: a two-way mapping between an
// in-memory object and a group in a hierarchical store. WriteStore and
// ReadStore handle only the type-specific body; headers, group resolution and
// version negotiation are SaveObject's and LoadObject's job.
type Storable interface {
	// StoreName returns the default group name used when the caller doesn't
	// pass one explicitly.
	StoreName() string

	// TypeTag returns the stable fully-qualified type identifier written into
	// the TYPE header key and consulted against the loader registry.
	TypeTag() string

	// StoreVersion returns the serialization-format version WriteStore
	// produces. ReadStore must accept this version and every older one the
	// type documents as supported.
	StoreVersion() string

	WriteStore(g *Group) error
	ReadStore(g *Group, version string) error
}

// Versioned is implemented by objects that carry their own schema version,
// written into the VERSION header key (distinct from the serialization-format
// STORE_VERSION).
type Versioned interface {
	ObjectVersion() string
}

// SaveObject serializes obj into parent under name (obj.StoreName() when name
// is empty). When no explicit name was given and the target group already
// holds unrelated data, it fails instead of silently overwriting: writers of
// container types are responsible for clearing their own stale keys, but only
// within groups they wrote in the first place.
func SaveObject(obj Storable, parent *Group, name string) error {
	explicit := name != ""
	if name == "" {
		name = obj.StoreName()
	}
	if !explicit {
		if target := parent.Group(name); target != nil && !target.IsEmpty() {
			hdr, ok, err := ReadHeader(target)
			if err != nil {
				return err
			}
			if !ok || hdr.Type != obj.TypeTag() {
				return Errf(parent.path, name, nil, "refusing to overwrite unrelated data (holds %q, writing %q)", hdr.Type, obj.TypeTag())
			}
		}
	}
	g, err := parent.CreateGroup(name)
	if err != nil {
		return err
	}
	hdr := ObjectHeader{
		Name:         typeName(obj),
		Type:         obj.TypeTag(),
		StoreVersion: obj.StoreVersion(),
	}
	if v, ok := obj.(Versioned); ok {
		hdr.Version = v.ObjectVersion()
	}
	if err := WriteHeader(g, hdr); err != nil {
		return err
	}
	return obj.WriteStore(g)
}

// LoadObject reads obj back from parent, dispatching on the stored
// STORE_VERSION (defaulting to OldestStoreVersion for pre-versioning data).
func LoadObject(obj Storable, parent *Group, name string) error {
	if name == "" {
		name = obj.StoreName()
	}
	g := parent.Group(name)
	if g == nil {
		return Errf(parent.path, name, ErrGroupNotFound, "")
	}
	return LoadInto(obj, g)
}

// LoadInto reads obj from the exact group it was serialized into. Registered
// loaders use this; LoadObject resolves the group name first.
func LoadInto(obj Storable, g *Group) error {
	hdr, ok, err := ReadHeader(g)
	if err != nil {
		return err
	}
	version := OldestStoreVersion
	if ok {
		version = hdr.StoreVersion
	}
	return obj.ReadStore(g, version)
}

// Rewrite reconstructs obj from the store, erases its group and serializes it
// again. Used to normalize on-disk layout after a schema upgrade, or to
// compact groups that accumulated stale keys over incremental writes.
func Rewrite(obj Storable, parent *Group, name string) error {
	if name == "" {
		name = obj.StoreName()
	}
	if err := LoadObject(obj, parent, name); err != nil {
		return err
	}
	g := parent.Group(name)
	if err := g.Clear(); err != nil {
		return err
	}
	return SaveObject(obj, parent, name)
}

// LoadAny reconstructs whatever lives in g: a registered loader when the TYPE
// header matches one, a generic nested map otherwise.
func LoadAny(g *Group) (any, error) {
	hdr, ok, err := ReadHeader(g)
	if err != nil {
		return nil, err
	}
	if ok {
		if fn := loaderFor(hdr.Type); fn != nil {
			return fn(g)
		}
	}
	return genericLoad(g)
}

// genericLoad is the fallback reconstruction: a nested map of decoded nodes
// and recursively loaded groups, header keys excluded.
func genericLoad(g *Group) (map[string]any, error) {
	result := make(map[string]any)
	for _, key := range g.ListNodes() {
		if IsHeaderKey(key) {
			continue
		}
		v, err := g.Get(key)
		if err != nil {
			return nil, err
		}
		result[key] = v
	}
	for _, name := range g.ListGroups() {
		v, err := LoadAny(g.Group(name))
		if err != nil {
			return nil, err
		}
		result[name] = v
	}
	return result, nil
}

// PruneStale deletes every node and sub-group of g that is not in keep and is
// not a header key. Writers of container types call this with the full set of
// keys they are about to write, so that reloading cannot resurrect values
// deleted since the previous save.
func PruneStale(g *Group, keep map[string]bool) error {
	for _, key := range g.ListNodes() {
		if IsHeaderKey(key) || keep[key] {
			continue
		}
		if err := g.Delete(key); err != nil {
			return err
		}
	}
	for _, name := range g.ListGroups() {
		if keep[name] {
			continue
		}
		if err := g.RemoveGroup(name); err != nil {
			return err
		}
	}
	return nil
}

func typeName(obj Storable) string {
	tag := obj.TypeTag()
	if i := strings.LastIndexByte(tag, '.'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
