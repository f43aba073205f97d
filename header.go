package hstore

// Header keys written into every serialized object's group. These are literal
// on-disk names; changing them breaks compatibility with existing stores.
const (
	hdrName         = "NAME"
	hdrType         = "TYPE"
	hdrObject       = "OBJECT"
	hdrVersion      = "VERSION"
	hdrStoreVersion = "STORE_VERSION"
)

// OldestStoreVersion is assumed when a group carries a type header without a
// STORE_VERSION, which happens for data written before versioning existed.
const OldestStoreVersion = "0.1.0"

// ObjectHeader is the small record identifying a serialized object. Object
// duplicates Name for compatibility with stores written by older tooling
// that read either key.
type ObjectHeader struct {
	Name         string
	Type         string
	Object       string
	Version      string
	StoreVersion string
}

// IsHeaderKey reports whether key is one of the reserved header names.
// Container writers exclude these from their own key namespaces.
func IsHeaderKey(key string) bool {
	switch key {
	case hdrName, hdrType, hdrObject, hdrVersion, hdrStoreVersion:
		return true
	}
	return false
}

// WriteHeader stores the object header into g. Empty Version is omitted.
func WriteHeader(g *Group, h ObjectHeader) error {
	if h.Object == "" {
		h.Object = h.Name
	}
	if err := g.Put(hdrName, h.Name); err != nil {
		return err
	}
	if err := g.Put(hdrType, h.Type); err != nil {
		return err
	}
	if err := g.Put(hdrObject, h.Object); err != nil {
		return err
	}
	if h.Version != "" {
		if err := g.Put(hdrVersion, h.Version); err != nil {
			return err
		}
	}
	return g.Put(hdrStoreVersion, h.StoreVersion)
}

// ReadHeader reads the object header of g. ok is false when the group has no
// TYPE key, i.e. it holds plain data rather than a serialized object.
func ReadHeader(g *Group) (h ObjectHeader, ok bool, err error) {
	if !g.Has(hdrType) {
		return h, false, nil
	}
	read := func(key string) (string, error) {
		v, err := g.GetDefault(key, "")
		if err != nil {
			return "", err
		}
		s, ok := v.(string)
		if !ok {
			return "", Corruptf(g.path, nil, "header key %s is %T, not a string", key, v)
		}
		return s, nil
	}
	if h.Name, err = read(hdrName); err != nil {
		return h, false, err
	}
	if h.Type, err = read(hdrType); err != nil {
		return h, false, err
	}
	if h.Object, err = read(hdrObject); err != nil {
		return h, false, err
	}
	if h.Version, err = read(hdrVersion); err != nil {
		return h, false, err
	}
	if h.StoreVersion, err = read(hdrStoreVersion); err != nil {
		return h, false, err
	}
	if h.StoreVersion == "" {
		h.StoreVersion = OldestStoreVersion
	}
	return h, true, nil
}
