package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const DefaultReverseURL = "https://nominatim.openstreetmap.org/reverse"

// Address is the administrative part of a reverse geocoding result
type Address struct {
	District     string `json:"district"`
	Neighborhood string `json:"neighborhood"`
}

type Geocoder struct {
	logger    *logrus.Logger
	cacheDir  string
	cache     map[string]Address
	cacheLock sync.RWMutex
	client    *http.Client
	baseURL   string
	limiter   *rate.Limiter
}

func NewGeocoder(logger *logrus.Logger, cacheDir, baseURL string) *Geocoder {
	if logger == nil {
		logger = logrus.New()
	}
	if baseURL == "" {
		baseURL = DefaultReverseURL
	}

	g := &Geocoder{
		logger:   logger,
		cacheDir: cacheDir,
		cache:    make(map[string]Address),
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		// Nominatim's usage policy allows one request per second
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}

	if cacheDir != "" {
		// Create cache directory if it doesn't exist
		os.MkdirAll(cacheDir, 0755)
		g.loadCache()
	}

	return g
}

func (g *Geocoder) cacheFile() string {
	return filepath.Join(g.cacheDir, "reverse_geocode_cache.json")
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(g.cacheFile())
	if err != nil {
		g.logger.Warnf("Could not load geocode cache: %v", err)
		return
	}

	g.cacheLock.Lock()
	defer g.cacheLock.Unlock()
	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.logger.Infof("Loaded %d cached locations", len(g.cache))
}

func (g *Geocoder) saveCache() {
	if g.cacheDir == "" {
		return
	}

	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}

	if err := os.WriteFile(g.cacheFile(), data, 0644); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}

	g.logger.Debug("Saved geocode cache to disk")
}

type nominatimReverse struct {
	Address struct {
		Town          string `json:"town"`
		County        string `json:"county"`
		CityDistrict  string `json:"city_district"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		Quarter       string `json:"quarter"`
		Village       string `json:"village"`
	} `json:"address"`
	Error string `json:"error"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ReverseGeocode returns the district and neighborhood of a position
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (Address, error) {
	cacheKey := fmt.Sprintf("%.5f,%.5f", lat, lng)

	// Check cache first
	g.cacheLock.RLock()
	if address, ok := g.cache[cacheKey]; ok {
		g.cacheLock.RUnlock()
		g.logger.WithFields(logrus.Fields{
			"position": cacheKey,
			"source":   "cache",
		}).Debug("Found address in cache")
		return address, nil
	}
	g.cacheLock.RUnlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return Address{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{
		"lat":            []string{fmt.Sprintf("%f", lat)},
		"lon":            []string{fmt.Sprintf("%f", lng)},
		"format":         []string{"json"},
		"zoom":           []string{"16"},
		"addressdetails": []string{"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL, nil)
	if err != nil {
		return Address{}, fmt.Errorf("failed to create request: %v", err)
	}

	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "AVM Property Valuation/1.0")
	req.Header.Set("Accept-Language", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("position", cacheKey).Error("Reverse geocoding request failed")
		return Address{}, fmt.Errorf("reverse geocoding request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Address{}, fmt.Errorf("reverse geocoding returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Address{}, fmt.Errorf("failed to read response: %v", err)
	}

	var result nominatimReverse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("position", cacheKey).Error("Failed to parse response")
		return Address{}, fmt.Errorf("failed to parse response: %v", err)
	}
	if result.Error != "" {
		return Address{}, fmt.Errorf("no address found for %s: %s", cacheKey, result.Error)
	}

	address := Address{
		District:     firstNonEmpty(result.Address.Town, result.Address.CityDistrict, result.Address.County),
		Neighborhood: firstNonEmpty(result.Address.Suburb, result.Address.Neighbourhood, result.Address.Quarter, result.Address.Village),
	}

	g.logger.WithFields(logrus.Fields{
		"position":     cacheKey,
		"district":     address.District,
		"neighborhood": address.Neighborhood,
		"source":       "nominatim",
	}).Info("Reverse geocoded position")

	// Cache the result
	g.cacheLock.Lock()
	g.cache[cacheKey] = address
	g.cacheLock.Unlock()

	go g.saveCache()

	return address, nil
}
