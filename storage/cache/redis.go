package cache

import (
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/spfs-io/spfs/encoding"
)

// RedisProvider is a Provider backed by a github.com/gomodule/redigo
// connection pool, grounded on the teacher's own redis-based
// BlobDescriptorCacheProvider: one connection fetched from the pool per
// operation, since the pool itself manages connection lifecycle.
type RedisProvider struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedisProvider returns a RedisProvider using pool, expiring cached
// entries after ttl (0 disables expiration).
func NewRedisProvider(pool *redis.Pool, ttl time.Duration) *RedisProvider {
	return &RedisProvider{pool: pool, ttl: ttl}
}

// NewRedisPool builds a redis.Pool dialing addr, the same shape as the
// teacher's cache provider construction from a single configured address.
func NewRedisPool(addr string, maxIdle int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func objectKey(digest encoding.Digest) string {
	return "spfs::objects::" + digest.String()
}

// Get returns the cached encoded bytes for digest, if present.
func (p *RedisProvider) Get(digest encoding.Digest) ([]byte, bool, error) {
	conn := p.pool.Get()
	defer conn.Close()

	raw, err := redis.Bytes(conn.Do("GET", objectKey(digest)))
	if err == redis.ErrNil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set stores encoded under digest's key, expiring after p.ttl if set.
func (p *RedisProvider) Set(digest encoding.Digest, encoded []byte) error {
	conn := p.pool.Get()
	defer conn.Close()

	key := objectKey(digest)
	if p.ttl <= 0 {
		_, err := conn.Do("SET", key, encoded)
		return err
	}
	_, err := conn.Do("SET", key, encoded, "EX", int(p.ttl.Seconds()))
	return err
}

// Invalidate removes digest's cached entry, if any.
func (p *RedisProvider) Invalidate(digest encoding.Digest) error {
	conn := p.pool.Get()
	defer conn.Close()

	_, err := conn.Do("DEL", objectKey(digest))
	return err
}
