package scanning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// Caching remembers recognitions by image content so re-uploads of the same
// bill skip the OCR provider
type Caching struct {
	scanner Scanner
	cache   *cache.Cache
}

// NewCaching wraps scanner with an in-memory cache whose entries live for ttl
func NewCaching(scanner Scanner, ttl time.Duration) *Caching {
	return &Caching{
		scanner: scanner,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Recognize returns a cached recognition or asks the wrapped scanner
func (c *Caching) Recognize(ctx context.Context, imageData []byte, contentType string) (*Recognition, error) {
	key := cacheKey(imageData, contentType)
	if cached, found := c.cache.Get(key); found {
		recognition := *cached.(*Recognition)
		return &recognition, nil
	}

	recognition, err := c.scanner.Recognize(ctx, imageData, contentType)
	if err != nil {
		return nil, err
	}

	stored := *recognition
	c.cache.Set(key, &stored, cache.DefaultExpiration)
	return recognition, nil
}

// Close closes the wrapped scanner
func (c *Caching) Close() error {
	c.cache.Flush()
	return c.scanner.Close()
}

func cacheKey(imageData []byte, contentType string) string {
	h := sha256.New()
	h.Write([]byte(contentType))
	h.Write([]byte{0})
	h.Write(imageData)
	return hex.EncodeToString(h.Sum(nil))
}
