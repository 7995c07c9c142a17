// Package resourceregistry looks up resource registry entries used to
// validate delegation targets and classify the resource type recorded on
// each delegation change.
package resourceregistry

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/altinn-access/go-core/pkg/types"
)

// Client is the resource directory contract.
type Client interface {
	// GetResource returns the registry entry, or (nil, nil) when the id
	// is not registered.
	GetResource(ctx context.Context, resourceID string) (*types.ServiceResource, error)
}

// HTTPClient fetches resources from the resource registry service, with
// an LRU cache in front since registry entries change rarely.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu       sync.Mutex
	cache    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
}

type cacheEntry struct {
	id        string
	resource  *types.ServiceResource
	expiresAt time.Time
}

// NewHTTPClient creates a registry client for the given base URL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		cache:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: 1024,
		ttl:      5 * time.Minute,
	}
}

// GetResource returns the registry entry for the id.
func (c *HTTPClient) GetResource(ctx context.Context, resourceID string) (*types.ServiceResource, error) {
	if cached, ok := c.cachedResource(resourceID); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/resource/"+url.PathEscape(resourceID), nil)
	if err != nil {
		return nil, fmt.Errorf("build resource request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", resourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get resource %s: unexpected status %d", resourceID, resp.StatusCode)
	}

	var resource types.ServiceResource
	if err := json.NewDecoder(resp.Body).Decode(&resource); err != nil {
		return nil, fmt.Errorf("decode resource %s: %w", resourceID, err)
	}

	c.storeResource(resourceID, &resource)
	return &resource, nil
}

func (c *HTTPClient) cachedResource(id string) (*types.ServiceResource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[id]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.cache, id)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.resource, true
}

func (c *HTTPClient) storeResource(id string, resource *types.ServiceResource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).id)
	}
	elem := c.order.PushFront(&cacheEntry{id: id, resource: resource, expiresAt: time.Now().Add(c.ttl)})
	c.cache[id] = elem
}

// StaticClient serves resources from a fixed map (tests, local runs).
type StaticClient struct {
	resources map[string]*types.ServiceResource
}

// NewStaticClient creates a client over a fixed resource set.
func NewStaticClient(resources ...*types.ServiceResource) *StaticClient {
	byID := make(map[string]*types.ServiceResource, len(resources))
	for _, r := range resources {
		byID[r.Identifier] = r
	}
	return &StaticClient{resources: byID}
}

// GetResource returns the entry from the fixed set.
func (c *StaticClient) GetResource(_ context.Context, resourceID string) (*types.ServiceResource, error) {
	return c.resources[resourceID], nil
}
