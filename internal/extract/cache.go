package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/reqtaker/internal/drive"
)

const cacheBucket = "extracted_content"

// Cache keeps successfully extracted content keyed by file ID and modified
// time, so train/test iterations and replays do not re-download a folder.
// An edit in Drive changes modifiedTime and therefore misses the cache.
type Cache struct {
	db *bolt.DB
}

type cacheEntry struct {
	Kind        string    `json:"kind"`
	Content     string    `json:"content"`
	ExtractedAt time.Time `json:"extracted_at"`
}

func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open extraction cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init extraction cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func cacheKey(f drive.File) []byte {
	return []byte(f.ID + "@" + f.ModifiedTime)
}

// Get returns ("", false) on a miss. Files without a modified time never hit.
func (c *Cache) Get(f drive.File) (string, bool) {
	if f.ModifiedTime == "" {
		return "", false
	}
	var entry cacheEntry
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucket)).Get(cacheKey(f))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		found = true
		return nil
	})
	return entry.Content, found
}

func (c *Cache) Put(f drive.File, kind Kind, content string) error {
	if f.ModifiedTime == "" {
		return nil
	}
	data, err := json.Marshal(cacheEntry{Kind: kind.String(), Content: content, ExtractedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cacheBucket)).Put(cacheKey(f), data)
	})
}

// Clear drops every cached entry.
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(cacheBucket)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(cacheBucket))
		return err
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}
