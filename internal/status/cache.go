package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

// DefaultTTL is how long a status stays readable after its last write
const DefaultTTL = 60 * time.Minute

// Cache is a time bounded store of job statuses keyed by payment reference.
// Entries expire ttl after their last write.
type Cache struct {
	entries *collection.Cache
	ttl     time.Duration
}

// NewCache creates a new status cache
func NewCache(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entries, err := collection.NewCache(ttl, collection.WithName("mint-status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create status cache: %w", err)
	}

	return &Cache{entries: entries, ttl: ttl}, nil
}

// Put stores a status with the default ttl
func (c *Cache) Put(key string, status domain.JobStatus) {
	c.PutWithTTL(key, status, c.ttl)
}

// PutWithTTL stores a status that expires after ttl
func (c *Cache) PutWithTTL(key string, status domain.JobStatus, ttl time.Duration) {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	c.entries.SetWithExpire(key, status, ttl)
}

// Get returns a copy of the status, or domain.ErrNotFound
func (c *Cache) Get(key string) (domain.JobStatus, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return domain.JobStatus{}, domain.ErrNotFound
	}

	status, ok := v.(domain.JobStatus)
	if !ok {
		return domain.JobStatus{}, errors.New("status cache: unexpected entry type")
	}

	return status, nil
}
