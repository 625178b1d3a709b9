package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"filedex/internal/model"
)

var resultsBucket = []byte("results")

// ResultCache is the on-disk query result cache. Entries expire after the
// TTL; expired entries are dropped lazily on read and swept by Prune.
type ResultCache struct {
	db  *bolt.DB
	ttl time.Duration
}

type cachedResult struct {
	Hits      []model.Hit  `json:"hits"`
	Method    model.Method `json:"method"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func OpenResultCache(path string, ttl time.Duration) (*ResultCache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ResultCache{db: db, ttl: ttl}, nil
}

func (c *ResultCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *ResultCache) Get(key string) ([]model.Hit, model.Method, bool) {
	if c == nil || c.db == nil {
		return nil, "", false
	}
	var cached cachedResult
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(resultsBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &cached); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found || time.Now().After(cached.ExpiresAt) {
		return nil, "", false
	}
	return cached.Hits, cached.Method, true
}

func (c *ResultCache) Put(key string, hits []model.Hit, method model.Method) {
	if c == nil || c.db == nil {
		return
	}
	raw, err := json.Marshal(cachedResult{Hits: hits, Method: method, ExpiresAt: time.Now().Add(c.ttl)})
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resultsBucket).Put([]byte(key), raw)
	})
}

// Invalidate drops every cached result. Called after scans mutate the
// index so stale result sets never outlive the data.
func (c *ResultCache) Invalidate() {
	if c == nil || c.db == nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(resultsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(resultsBucket)
		return err
	})
}

// Prune sweeps expired entries and reports how many were removed.
func (c *ResultCache) Prune() int {
	if c == nil || c.db == nil {
		return 0
	}
	removed := 0
	now := time.Now()
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(resultsBucket)
		cur := b.Cursor()
		var expired [][]byte
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var cached cachedResult
			if err := json.Unmarshal(v, &cached); err != nil || now.After(cached.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := b.Delete(k); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}
