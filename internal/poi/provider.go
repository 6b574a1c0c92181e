package poi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"avm/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://places.googleapis.com/v1/places:searchNearby"
	DefaultTimeout    = 10 * time.Second
	DefaultRateLimit  = 10
	DefaultMaxResults = 10
)

// Provider finds places of one type around a position
type Provider interface {
	NearbySearch(ctx context.Context, lat, lng float64, radiusMeters int, placeType string) ([]models.Place, error)
}

// APIError is a non-success response of the Places API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("places API error: %s (status %d)", e.Message, e.StatusCode)
}

// PlacesClient talks to the Google Places searchNearby endpoint
type PlacesClient struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

type ClientOption func(*PlacesClient)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *PlacesClient) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *PlacesClient) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *PlacesClient) {
		c.logger = logger
	}
}

// WithRateLimit caps outgoing requests per second. Non-positive values keep
// the default limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *PlacesClient) {
		if requestsPerSecond <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

func WithMaxResults(maxResults int) ClientOption {
	return func(c *PlacesClient) {
		c.maxResults = maxResults
	}
}

func NewPlacesClient(apiKey string, opts ...ClientOption) *PlacesClient {
	c := &PlacesClient{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		maxResults: DefaultMaxResults,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  logrus.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchNearbyRequest struct {
	IncludedTypes       []string `json:"includedTypes"`
	MaxResultCount      int      `json:"maxResultCount"`
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

type searchNearbyResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		Location *latLng  `json:"location"`
		Rating   *float64 `json:"rating"`
	} `json:"places"`
}

// NearbySearch returns the places of placeType within radiusMeters
func (c *PlacesClient) NearbySearch(ctx context.Context, lat, lng float64, radiusMeters int, placeType string) ([]models.Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var body searchNearbyRequest
	body.IncludedTypes = []string{placeType}
	body.MaxResultCount = c.maxResults
	body.LocationRestriction.Circle.Center = latLng{Latitude: lat, Longitude: lng}
	body.LocationRestriction.Circle.Radius = float64(radiusMeters)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "places.displayName,places.location,places.rating")

	c.logger.WithFields(logrus.Fields{
		"type":   placeType,
		"radius": radiusMeters,
	}).Debug("Places nearby search")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var result searchNearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	places := make([]models.Place, 0, len(result.Places))
	for _, p := range result.Places {
		if p.Location == nil {
			continue
		}
		name := p.DisplayName.Text
		if name == "" {
			name = "Unknown"
		}
		places = append(places, models.Place{
			Name:   name,
			Lat:    p.Location.Latitude,
			Lng:    p.Location.Longitude,
			Rating: p.Rating,
		})
	}

	return places, nil
}
