// Package clients provides HTTP clients for service-to-service communication.
package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/redis/go-redis/v9"

	"cart-service/internal/catalog"
)

// ErrProductNotFound is returned when the products service has no such product
var ErrProductNotFound = errors.New("product not found")

// ProductCacheTTL is short so price and stock changes show up quickly
const ProductCacheTTL = 1 * time.Minute

// ProductsClient fetches product snapshots from the products service.
type ProductsClient struct {
	baseURL     string
	serviceName string
	cache       map[string]*ProductCacheEntry
	cacheTTL    time.Duration
	mu          sync.RWMutex
	shared      *cache.CacheLayer
	httpClient  *http.Client
}

// ProductCacheEntry contains a cached product document.
type ProductCacheEntry struct {
	Product   catalog.RawProduct
	ExpiresAt time.Time
}

// productResponse is the products API envelope. Some deployments return the
// product document bare, without the envelope.
type productResponse struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// NewProductsClient creates a new products client with caching.
func NewProductsClient(baseURL string) *ProductsClient {
	if baseURL == "" {
		baseURL = "http://products-service.devtest.svc.cluster.local:8083"
	}

	// Create optimized transport with connection pooling
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &ProductsClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		serviceName: "cart-service",
		cache:       make(map[string]*ProductCacheEntry),
		cacheTTL:    ProductCacheTTL,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

// WithSharedCache adds a Redis-backed cache layer shared by all replicas.
// The in-process cache still answers first.
func (c *ProductsClient) WithSharedCache(redisClient *redis.Client) *ProductsClient {
	if redisClient == nil {
		return c
	}
	c.shared = cache.NewCacheLayerFromClient(redisClient, cache.CacheConfig{
		L1Enabled:  true,
		L1MaxItems: 2000,
		L1TTL:      15 * time.Second,
		DefaultTTL: c.cacheTTL,
		KeyPrefix:  "tesseract:cart-products:",
	})
	return c
}

// SharedCacheStats returns statistics of the shared cache layer, if any
func (c *ProductsClient) SharedCacheStats() *cache.CacheStats {
	if c.shared == nil {
		return nil
	}
	stats := c.shared.Stats()
	return &stats
}

func productCacheKey(tenantID, productID string) string {
	return fmt.Sprintf("%s:%s", tenantID, productID)
}

// GetProduct fetches a single product and classifies it as a varianted or
// legacy snapshot.
func (c *ProductsClient) GetProduct(ctx context.Context, tenantID, productID string) (catalog.Snapshot, error) {
	raw, err := c.getRaw(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	return raw.Snapshot(), nil
}

func (c *ProductsClient) getRaw(ctx context.Context, tenantID, productID string) (catalog.RawProduct, error) {
	key := productCacheKey(tenantID, productID)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.ExpiresAt) {
		return entry.Product, nil
	}

	var raw catalog.RawProduct
	var err error
	if c.shared != nil {
		err = c.shared.GetOrSetJSON(ctx, key, &raw, c.cacheTTL, func() (any, error) {
			fetched, fetchErr := c.fetchProduct(ctx, tenantID, productID)
			if fetchErr != nil {
				return nil, fetchErr
			}
			return &fetched, nil
		})
	} else {
		raw, err = c.fetchProduct(ctx, tenantID, productID)
	}
	if err != nil {
		return catalog.RawProduct{}, err
	}

	c.mu.Lock()
	c.cache[key] = &ProductCacheEntry{
		Product:   raw,
		ExpiresAt: time.Now().Add(c.cacheTTL),
	}
	c.mu.Unlock()

	return raw, nil
}

// fetchProduct makes the HTTP request for one product.
func (c *ProductsClient) fetchProduct(ctx context.Context, tenantID, productID string) (catalog.RawProduct, error) {
	endpoint := fmt.Sprintf("%s/api/v1/products/%s?includeVariants=true", c.baseURL, url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return catalog.RawProduct{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-Internal-Service", c.serviceName)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return catalog.RawProduct{}, fmt.Errorf("failed to fetch product: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return catalog.RawProduct{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if resp.StatusCode != http.StatusOK {
		return catalog.RawProduct{}, fmt.Errorf("products API returned status %d", resp.StatusCode)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return catalog.RawProduct{}, fmt.Errorf("failed to decode response: %w", err)
	}

	doc := body
	var envelope productResponse
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		doc = envelope.Data
	} else if envelope.Success != nil && !*envelope.Success {
		return catalog.RawProduct{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	var raw catalog.RawProduct
	if err := json.Unmarshal(doc, &raw); err != nil {
		return catalog.RawProduct{}, fmt.Errorf("failed to decode product: %w", err)
	}
	if raw.ID == "" && raw.LegacyID == "" {
		raw.ID = productID
	}
	return raw, nil
}

// InvalidateCache removes a product from the cache.
func (c *ProductsClient) InvalidateCache(ctx context.Context, tenantID, productID string) {
	key := productCacheKey(tenantID, productID)

	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()

	if c.shared != nil {
		_ = c.shared.Delete(ctx, key)
	}
}

// InvalidateTenantCache removes all products for a tenant from the cache.
func (c *ProductsClient) InvalidateTenantCache(ctx context.Context, tenantID string) {
	c.mu.Lock()
	prefix := tenantID + ":"
	for key := range c.cache {
		if strings.HasPrefix(key, prefix) {
			delete(c.cache, key)
		}
	}
	c.mu.Unlock()

	if c.shared != nil {
		_ = c.shared.DeletePattern(ctx, prefix+"*")
	}
}

// ClearCache clears the in-process cache.
func (c *ProductsClient) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*ProductCacheEntry)
}
