package location

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

const userAgent = "go-sos-relay/1.0"

// cacheRadiusKm is how close a cached fix must be to count as a hit.
const cacheRadiusKm = 0.1

// cacheLimit caps how many resolved locations are kept for offline reuse.
const cacheLimit = 100

// Location is a resolved, human-readable place for a coordinate pair.
type Location struct {
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address,omitempty"`
	ResolvedAt  time.Time         `json:"resolved_at"`
}

// Provider reverse-geocodes coordinates against a Nominatim-compatible
// endpoint, with a small on-disk cache so recently seen places still resolve
// while offline. Failures are never fatal: callers fall back to
// FallbackDisplayName.
type Provider struct {
	endpoint  string
	cachePath string
	client    *http.Client

	mu    sync.Mutex
	cache []Location
}

func NewProvider(endpoint, cachePath string, timeout time.Duration) *Provider {
	p := &Provider{
		endpoint:  endpoint,
		cachePath: cachePath,
		client: &http.Client{
			Timeout: timeout,
		},
	}
	p.loadCache()
	return p
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

func (p *Provider) Resolve(ctx context.Context, lat, lng float64) (*Location, error) {
	if cached := p.lookupCache(lat, lng); cached != nil {
		return cached, nil
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	loc := &Location{
		Latitude:    lat,
		Longitude:   lng,
		DisplayName: data.DisplayName,
		Address:     data.Address,
		ResolvedAt:  time.Now(),
	}
	if loc.DisplayName == "" {
		loc.DisplayName = "Unknown Location"
	}

	p.storeCache(*loc)
	return loc, nil
}

// FallbackDisplayName is what callers show when resolution fails.
func FallbackDisplayName(lat, lng float64) string {
	return fmt.Sprintf("Location (%.5f, %.5f)", lat, lng)
}

// Distance returns the great-circle distance between two coordinates in
// kilometers (haversine).
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371

	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusKm * c
}

func (p *Provider) lookupCache(lat, lng float64) *Location {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.cache {
		c := p.cache[i]
		if Distance(lat, lng, c.Latitude, c.Longitude) < cacheRadiusKm {
			return &c
		}
	}
	return nil
}

func (p *Provider) storeCache(loc Location) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cache = append(p.cache, loc)
	if len(p.cache) > cacheLimit {
		p.cache = p.cache[len(p.cache)-cacheLimit:]
	}

	if p.cachePath == "" {
		return
	}
	data, err := json.Marshal(p.cache)
	if err != nil {
		return
	}
	_ = os.WriteFile(p.cachePath, data, 0o644)
}

func (p *Provider) loadCache() {
	if p.cachePath == "" {
		return
	}
	data, err := os.ReadFile(p.cachePath)
	if err != nil {
		return
	}
	var cache []Location
	if err := json.Unmarshal(data, &cache); err != nil {
		return
	}
	p.cache = cache
}
