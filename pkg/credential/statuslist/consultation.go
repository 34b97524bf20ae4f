package statuslist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultCacheTTL bounds how long a fetched list token is trusted
// before the consulting side re-fetches, per spec §4.5's consultation
// protocol. Grounded on the teacher's
// pkg/openid4vp/encryption_key_cache.go DefaultEphemeralKeyTTL pattern
// of a package-level default alongside a With*TTL override.
const DefaultCacheTTL = 5 * time.Minute

// Consulter downloads, verifies and caches status list tokens,
// resolving a credential's embedded status_list claim (uri, idx) to a
// live status value.
type Consulter struct {
	httpClient *http.Client
	keyFunc    jwt.Keyfunc
	cache      *ttlcache.Cache[string, *TokenClaims]
}

// NewConsulter creates a Consulter that verifies fetched tokens with
// keyFunc and caches them per-URI for ttl.
func NewConsulter(httpClient *http.Client, keyFunc jwt.Keyfunc, ttl time.Duration) *Consulter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New(ttlcache.WithTTL[string, *TokenClaims](ttl))
	go cache.Start()
	return &Consulter{httpClient: httpClient, keyFunc: keyFunc, cache: cache}
}

// Stop stops the cache's background eviction goroutine.
func (c *Consulter) Stop() {
	c.cache.Stop()
}

// Status resolves claim against the list at claim.URI (fetching and
// verifying it, or reusing a cached, still-fresh copy) and returns the
// status at claim.Idx. count is the number of entries in the list,
// needed to unpack the bit-packed payload.
func (c *Consulter) Status(ctx context.Context, claim Claim, count int) (uint8, error) {
	tokenClaims, err := c.fetch(ctx, claim.URI)
	if err != nil {
		return 0, err
	}
	return StatusAt(tokenClaims, claim.Idx, count)
}

func (c *Consulter) fetch(ctx context.Context, uri string) (*TokenClaims, error) {
	if item := c.cache.Get(uri); item != nil {
		return item.Value(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("statuslist: building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("statuslist: fetching list token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("statuslist: fetching list token: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("statuslist: reading list token body: %w", err)
	}

	claims, err := Verify(string(body), c.keyFunc)
	if err != nil {
		return nil, err
	}

	c.cache.Set(uri, claims, ttlcache.DefaultTTL)
	return claims, nil
}
