package hstore

import (
	"unsafe"

	"go.etcd.io/bbolt"
)

// Bolt can only hold buckets at the top of a transaction, so the root group
// lives in a fixed bucket created on open.
const boltRootBucket = "root"

type boltBackend struct {
	bdb *bbolt.DB
}

func newBoltBackend(bdb *bbolt.DB) (backend, error) {
	err := bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(unsafeBytesFromString(boltRootBucket))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &boltBackend{bdb: bdb}, nil
}

func (b *boltBackend) Root() backendGroup {
	return &boltGroup{bdb: b.bdb}
}

func (b *boltBackend) Close() error {
	return b.bdb.Close()
}

// boltGroup remembers its path from the root and re-navigates per operation,
// each inside its own short-lived transaction. Handles therefore never
// dangle across transactions.
type boltGroup struct {
	bdb  *bbolt.DB
	path []string
}

func (g *boltGroup) bucket(btx *bbolt.Tx) *bbolt.Bucket {
	b := btx.Bucket(unsafeBytesFromString(boltRootBucket))
	for _, name := range g.path {
		if b == nil {
			return nil
		}
		b = b.Bucket(unsafeBytesFromString(name))
	}
	return b
}

func (g *boltGroup) sub(name string) *boltGroup {
	path := make([]string, len(g.path)+1)
	copy(path, g.path)
	path[len(g.path)] = name
	return &boltGroup{bdb: g.bdb, path: path}
}

func (g *boltGroup) Child(name string) backendGroup {
	var found bool
	ensure(g.bdb.View(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		found = b != nil && b.Bucket(unsafeBytesFromString(name)) != nil
		return nil
	}))
	if !found {
		return nil
	}
	return g.sub(name)
}

func (g *boltGroup) CreateChild(name string) (backendGroup, error) {
	err := g.bdb.Update(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		if b == nil {
			return ErrGroupNotFound
		}
		_, err := b.CreateBucketIfNotExists(unsafeBytesFromString(name))
		return err
	})
	if err != nil {
		return nil, err
	}
	return g.sub(name), nil
}

func (g *boltGroup) RemoveChild(name string) error {
	return g.bdb.Update(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		if b == nil {
			return ErrGroupNotFound
		}
		err := b.DeleteBucket(unsafeBytesFromString(name))
		if err == bbolt.ErrBucketNotFound {
			return ErrGroupNotFound
		}
		return err
	})
}

func (g *boltGroup) Get(key string) []byte {
	var value []byte
	ensure(g.bdb.View(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		if b == nil {
			return nil
		}
		if v := b.Get(unsafeBytesFromString(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	}))
	return value
}

func (g *boltGroup) Put(key string, value []byte) error {
	return g.bdb.Update(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		if b == nil {
			return ErrGroupNotFound
		}
		return b.Put(unsafeBytesFromString(key), value)
	})
}

func (g *boltGroup) Delete(key string) error {
	return g.bdb.Update(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		if b == nil {
			return ErrGroupNotFound
		}
		return b.Delete(unsafeBytesFromString(key))
	})
}

func (g *boltGroup) Nodes() []string {
	return g.enumerate(false)
}

func (g *boltGroup) Children() []string {
	return g.enumerate(true)
}

// enumerate walks the bucket's cursor; Bolt reports nested buckets as keys
// with a nil value, which is exactly the node/group split we need. Bolt
// cursors iterate in key order, so the result is already sorted.
func (g *boltGroup) enumerate(groups bool) []string {
	var names []string
	ensure(g.bdb.View(func(btx *bbolt.Tx) error {
		b := g.bucket(btx)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if (v == nil) == groups {
				names = append(names, string(k))
			}
		}
		return nil
	}))
	return names
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
