package credential

import (
	"fmt"
	"sync/atomic"
	"time"

	"marketplace-relay/internal/common/logging"
)

// Credential is a bearer token issued by the partner login endpoint.
// A Credential is immutable once built; a refresh produces a new value.
type Credential struct {
	Token string
	// RestaurantID is echoed by the login response and surfaced to callers
	// of the token endpoint. It may be empty.
	RestaurantID string
	AcquiredAt   time.Time
	ExpiresAt    time.Time
}

// Fresh reports whether the credential can still be used at now. A
// credential is stale at or after its expiry instant.
func (c *Credential) Fresh(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Secrets are the static partner secrets exchanged for a Credential
type Secrets struct {
	AppSecretKey        string
	RestaurantSecretKey string
}

// Empty reports whether either secret is missing
func (s Secrets) Empty() bool {
	return s.AppSecretKey == "" || s.RestaurantSecretKey == ""
}

// String masks both secrets so they are safe to print
func (s Secrets) String() string {
	return fmt.Sprintf("Secrets{app:%s restaurant:%s}", logging.Mask(s.AppSecretKey), logging.Mask(s.RestaurantSecretKey))
}

// GoString keeps %#v from printing the secrets either
func (s Secrets) GoString() string {
	return s.String()
}

// Cache holds at most one Credential. Load returns nil when empty.
// Implementations must make Store visible to all readers atomically.
type Cache interface {
	Load() *Credential
	Store(cred *Credential)
}

// MemoryCache is the process-local Cache
type MemoryCache struct {
	current atomic.Pointer[Credential]
}

// NewMemoryCache returns an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load() *Credential {
	return c.current.Load()
}

func (c *MemoryCache) Store(cred *Credential) {
	c.current.Store(cred)
}
