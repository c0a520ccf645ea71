// Package cache decorates a graph.Database with an optional descriptor
// cache, so repeatedly-read objects (a platform's stack, a layer's
// manifest digest) skip the backing store's decode path. It is purely an
// optimization: every method falls back to the backing database on a miss,
// so a nil or empty cache changes nothing but performance.
package cache

import (
	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
)

// Provider is satisfied by a concrete cache backend (Redis here). It deals
// in already-encoded object bytes rather than graph.Object values, so the
// backend never needs to import the kind-decoding machinery.
type Provider interface {
	Get(digest encoding.Digest) ([]byte, bool, error)
	Set(digest encoding.Digest, encoded []byte) error
	Invalidate(digest encoding.Digest) error
}

// Database wraps a graph.Database, consulting cache before falling through
// to the backing store on ReadObject, and keeping the cache warm on
// WriteObject/stale entries evicted on RemoveObject.
type Database struct {
	graph.Database
	cache Provider
}

// NewDatabase returns backing decorated with cache. A nil cache makes
// Database behave exactly like backing.
func NewDatabase(backing graph.Database, cache Provider) *Database {
	return &Database{Database: backing, cache: cache}
}

// ReadObject serves digest from cache when present, otherwise reads
// through to the backing database and populates the cache on success.
func (d *Database) ReadObject(digest encoding.Digest) (graph.Object, error) {
	if d.cache != nil {
		if raw, ok, err := d.cache.Get(digest); err == nil && ok {
			if obj, decodeErr := decode(raw); decodeErr == nil {
				return obj, nil
			}
			// A decode failure on a cached entry means the cache holds
			// something stale or corrupt; fall through to the backing
			// store rather than propagate it.
			_ = d.cache.Invalidate(digest)
		}
	}

	obj, err := d.Database.ReadObject(digest)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		if raw, encodeErr := encodeObject(obj); encodeErr == nil {
			_ = d.cache.Set(digest, raw)
		}
	}
	return obj, nil
}

// WriteObject writes through to the backing database and primes the cache
// with the result.
func (d *Database) WriteObject(obj graph.Object) error {
	if err := d.Database.WriteObject(obj); err != nil {
		return err
	}
	if d.cache == nil {
		return nil
	}
	digest, err := objectDigest(obj)
	if err != nil {
		return nil
	}
	if raw, err := encodeObject(obj); err == nil {
		_ = d.cache.Set(digest, raw)
	}
	return nil
}

// RemoveObject removes digest from the backing database and evicts it
// from the cache.
func (d *Database) RemoveObject(digest encoding.Digest) error {
	if err := d.Database.RemoveObject(digest); err != nil {
		return err
	}
	if d.cache != nil {
		_ = d.cache.Invalidate(digest)
	}
	return nil
}

func objectDigest(obj graph.Object) (encoding.Digest, error) {
	if b, ok := obj.(interface{ Digest() encoding.Digest }); ok {
		return b.Digest(), nil
	}
	return graph.DigestOfObject(obj)
}
