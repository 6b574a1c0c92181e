package poi

import (
	"fmt"

	"avm/internal/models"
)

// ProximityScore stands in for distance to the city centre, which is not computed
const ProximityScore = 15

func formatDistance(m int) string {
	if m < 1000 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%.1fkm", float64(m)/1000)
}

func describe(p models.NearbyPOI) string {
	return fmt.Sprintf("%s - %s", p.Name, formatDistance(p.DistanceMeters))
}

func detail(p models.NearbyPOI) models.POIDetail {
	return models.POIDetail{Name: p.Name, DistanceMeters: p.DistanceMeters, IsChainMarket: p.IsChainMarket}
}

// byCategory keeps the distance order of pois
func byCategory(pois []models.NearbyPOI, categories ...string) []models.NearbyPOI {
	var out []models.NearbyPOI
	for _, p := range pois {
		for _, c := range categories {
			if p.Category == c {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Score rates the surroundings from the POIs found around a location. pois
// must be sorted by distance, as returned by Scanner.Scan.
func Score(pois []models.NearbyPOI) models.LocationScore {
	score := models.LocationScore{
		Advantages:    []string{},
		Disadvantages: []string{},
		POIDetails: models.CategoryPOIDetails{
			Transportation: []models.POIDetail{},
			Education:      []models.POIDetail{},
			Amenities:      []models.POIDetail{},
			Health:         []models.POIDetail{},
		},
	}
	b := &score.Breakdown
	advantage := func(s string) { score.Advantages = append(score.Advantages, s) }
	disadvantage := func(s string) { score.Disadvantages = append(score.Disadvantages, s) }

	// Education
	schools := byCategory(pois, models.POISchool)
	if len(schools) > 0 {
		closest := schools[0]
		switch {
		case closest.DistanceMeters < 500:
			b.Education = 15
		case closest.DistanceMeters < 1000:
			b.Education = 12
		case closest.DistanceMeters < 2000:
			b.Education = 8
		default:
			b.Education = 3
			disadvantage("Far from schools")
		}
		if b.Education > 3 {
			advantage(describe(closest))
		}
		for _, s := range schools[:min(2, len(schools))] {
			if s.DistanceMeters < 1500 {
				score.POIDetails.Education = append(score.POIDetails.Education, detail(s))
			}
		}
	} else {
		disadvantage("No school nearby")
	}

	// Health
	health := byCategory(pois, models.POIHospital)
	if len(health) > 0 {
		closest := health[0]
		switch {
		case closest.DistanceMeters < 2000:
			b.Health = 10
			advantage(describe(closest))
		case closest.DistanceMeters < 5000:
			b.Health = 7
			disadvantage("Nearest health facility is over 2km away")
		default:
			b.Health = 3
			disadvantage("Far from health facilities")
		}
		for _, h := range health[:min(2, len(health))] {
			if h.DistanceMeters < 3000 {
				score.POIDetails.Health = append(score.POIDetails.Health, detail(h))
			}
		}
	} else {
		disadvantage("No health facility nearby")
	}

	// Transportation
	transit := byCategory(pois, models.POITransportation)
	if len(transit) > 0 {
		closest := transit[0]
		switch {
		case closest.DistanceMeters < 500:
			b.Transportation = 20
			advantage(describe(closest))
		case closest.DistanceMeters < 1000:
			b.Transportation = 15
			advantage(describe(closest))
		case closest.DistanceMeters < 1500:
			b.Transportation = 10
			disadvantage("Public transport is over 1km away")
		default:
			b.Transportation = 5
			disadvantage("Far from public transport")
		}
		for _, t := range transit[:min(2, len(transit))] {
			if t.DistanceMeters < 1500 {
				score.POIDetails.Transportation = append(score.POIDetails.Transportation, detail(t))
			}
		}
	} else {
		disadvantage("No public transport nearby")
	}

	// Amenities
	amenities := byCategory(pois, models.POIMarket, models.POIShoppingMall, models.POIPark)
	switch {
	case len(amenities) >= 3:
		b.Amenities = 20
	case len(amenities) == 2:
		b.Amenities = 15
	case len(amenities) == 1:
		b.Amenities = 10
	default:
		b.Amenities = 3
		disadvantage("Limited shopping and social amenities")
	}
	described := 0
	for _, a := range amenities[:min(3, len(amenities))] {
		if a.DistanceMeters < 1000 {
			advantage(describe(a))
			score.POIDetails.Amenities = append(score.POIDetails.Amenities, detail(a))
			described++
		}
	}
	if len(amenities) > 0 && described == 0 {
		advantage(fmt.Sprintf("%d amenities within reach", len(amenities)))
	}

	if worship := byCategory(pois, models.POIWorship); len(worship) > 0 && worship[0].DistanceMeters < 800 {
		advantage(describe(worship[0]))
	}
	if bakeries := byCategory(pois, models.POIBakery); len(bakeries) > 0 && bakeries[0].DistanceMeters < 600 {
		advantage(describe(bakeries[0]))
	}

	// Environment
	parks := byCategory(pois, models.POIPark)
	switch {
	case len(parks) > 0 && parks[0].DistanceMeters < 500:
		b.Environment = 10
		advantage(describe(parks[0]))
	case len(parks) > 0 && parks[0].DistanceMeters < 1000:
		b.Environment = 7
		advantage(describe(parks[0]))
	default:
		b.Environment = 3
		disadvantage("No park within walking distance")
	}

	b.Proximity = ProximityScore

	score.Total = b.Transportation + b.Education + b.Amenities + b.Health + b.Environment + b.Proximity
	return score
}
