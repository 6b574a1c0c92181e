package poi

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"avm/internal/geometry"
	"avm/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type category struct {
	name   string
	types  []string
	radius int
}

// categories lists the provider place types searched for each POI category
var categories = []category{
	{models.POISchool, []string{"school", "primary_school", "secondary_school", "university"}, 2000},
	{models.POIHospital, []string{"hospital", "doctor", "pharmacy"}, 5000},
	{models.POIShoppingMall, []string{"shopping_mall", "department_store"}, 3000},
	{models.POIPark, []string{"park"}, 1000},
	{models.POITransportation, []string{"bus_station", "transit_station", "train_station"}, 1500},
	{models.POIWorship, []string{"mosque"}, 1000},
	{models.POIMarket, []string{"supermarket", "grocery_store", "convenience_store"}, 1000},
	{models.POIBakery, []string{"bakery"}, 800},
}

var chainMarkets = []string{
	"A101", "BİM", "BIM", "ŞOK", "SOK", "CarrefourSA", "Carrefour", "Migros",
	"Macro Center", "Metro", "File", "Hakmar", "Yunus Market", "Tarım Kredi",
	"Gratis", "Watsons", "Rossmann", "Özdilek", "Kipa", "Groseri",
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9ığüşöç]`)

func chainKey(name string) string {
	return nonAlnum.ReplaceAllString(cases.Lower(language.Turkish).String(name), "")
}

// IsChainMarket reports whether a market name belongs to a known chain
func IsChainMarket(name string) bool {
	key := chainKey(name)
	if key == "" {
		return false
	}
	for _, chain := range chainMarkets {
		if strings.Contains(key, chainKey(chain)) {
			return true
		}
	}
	return false
}

// DefaultPOIs is the placeholder neighbourhood used when no provider is configured
func DefaultPOIs() []models.NearbyPOI {
	rating := func(v float64) *float64 { return &v }
	return []models.NearbyPOI{
		{Category: models.POIMarket, Name: "Market", DistanceMeters: 300, Rating: rating(4.0)},
		{Category: models.POITransportation, Name: "Bus Stop", DistanceMeters: 400, Rating: rating(4.2)},
		{Category: models.POIWorship, Name: "Mosque", DistanceMeters: 500, Rating: rating(4.5)},
		{Category: models.POIPark, Name: "Park", DistanceMeters: 600, Rating: rating(4.1)},
		{Category: models.POISchool, Name: "School", DistanceMeters: 800, Rating: rating(4.0)},
		{Category: models.POIHospital, Name: "Health Center", DistanceMeters: 1500, Rating: rating(3.8)},
	}
}

// Scanner queries the provider for every category around a position
type Scanner struct {
	provider    Provider
	concurrency int
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewScanner creates a scanner. A nil provider makes Scan return DefaultPOIs.
func NewScanner(provider Provider, concurrency int, timeout time.Duration, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scanner{
		provider:    provider,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

type call struct {
	category  string
	placeType string
	radius    int
}

// Scan returns the POIs around lat/lng sorted by distance. A failed or timed
// out provider call contributes no POIs and never fails the scan.
func (s *Scanner) Scan(ctx context.Context, lat, lng float64) []models.NearbyPOI {
	if s.provider == nil {
		s.logger.Warn("No POI provider configured, using default POIs")
		return DefaultPOIs()
	}

	var calls []call
	for _, c := range categories {
		for _, t := range c.types {
			calls = append(calls, call{category: c.name, placeType: t, radius: c.radius})
		}
	}

	results := make([][]models.Place, len(calls))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			callCtx := ctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}

			places, err := s.provider.NearbySearch(callCtx, lat, lng, c.radius, c.placeType)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"category": c.category,
					"type":     c.placeType,
				}).Warn("POI search failed, continuing without it")
				return nil
			}
			results[i] = places
			return nil
		})
	}
	g.Wait()

	seen := make(map[string]int)
	var pois []models.NearbyPOI
	for i, places := range results {
		c := calls[i]
		for _, p := range places {
			poi := models.NearbyPOI{
				Category:       c.category,
				Name:           p.Name,
				DistanceMeters: int(geometry.DistanceMeters(lat, lng, p.Lat, p.Lng) + 0.5),
				Rating:         p.Rating,
			}
			if c.category == models.POIMarket {
				poi.IsChainMarket = IsChainMarket(p.Name)
			}

			// Sub-types overlap, keep the nearest occurrence of a place
			key := c.category + "|" + p.Name
			if idx, ok := seen[key]; ok {
				if poi.DistanceMeters < pois[idx].DistanceMeters {
					pois[idx] = poi
				}
				continue
			}
			seen[key] = len(pois)
			pois = append(pois, poi)
		}
	}

	sort.SliceStable(pois, func(a, b int) bool {
		if pois[a].DistanceMeters != pois[b].DistanceMeters {
			return pois[a].DistanceMeters < pois[b].DistanceMeters
		}
		return pois[a].Name < pois[b].Name
	})

	s.logger.WithFields(logrus.Fields{
		"calls": len(calls),
		"pois":  len(pois),
	}).Info("POI scan completed")

	return pois
}
