package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"avm/internal/models"
	"avm/internal/normalize"
)

// SegmentFile is the JSON layout of a segment override file
type SegmentFile struct {
	Categories   map[models.PropertyType][]string `json:"categories"`
	Neighborhood map[string]float64              `json:"neighborhood_coefficients"`
}

// Segments maps property types to dataset categories and neighborhoods to
// their observed price coefficient
type Segments struct {
	mu           sync.RWMutex
	categories   map[models.PropertyType][]string
	coefficients map[string]float64
}

// defaultCategories reuses the land market for agricultural parcels and the
// commercial market for industrial property
var defaultCategories = map[models.PropertyType][]string{
	models.PropertyResidential:  {"residential"},
	models.PropertyLand:         {"land"},
	models.PropertyCommercial:   {"commercial"},
	models.PropertyIndustrial:   {"commercial"},
	models.PropertyAgricultural: {"land"},
}

var defaultCoefficients = map[string]float64{
	"başpınar":  1.05,
	"kemaliye":  1.04,
	"yeni":      1.02,
	"puna":      0.99,
	"dereköy":   0.98,
	"sivritepe": 0.97,
}

// DefaultSegments returns the built-in segment tables
func DefaultSegments() *Segments {
	s := &Segments{
		categories:   make(map[models.PropertyType][]string, len(defaultCategories)),
		coefficients: make(map[string]float64, len(defaultCoefficients)),
	}
	for k, v := range defaultCategories {
		s.categories[k] = append([]string(nil), v...)
	}
	for k, v := range defaultCoefficients {
		s.coefficients[k] = v
	}
	return s
}

// LoadSegments returns the default tables overridden by the JSON file at
// path. An empty path yields the defaults.
func LoadSegments(path string) (*Segments, error) {
	s := DefaultSegments()
	if path == "" {
		return s, nil
	}

	// Get absolute path to config file
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read segments file: %v", err)
	}

	var file SegmentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse segments file: %v", err)
	}

	for propertyType, categories := range file.Categories {
		if err := s.SetCategories(propertyType, categories); err != nil {
			return nil, err
		}
	}
	for name, coefficient := range file.Neighborhood {
		if err := s.SetCoefficient(name, coefficient); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Categories returns the dataset categories searched for a property type
func (s *Segments) Categories(propertyType models.PropertyType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if categories, ok := s.categories[propertyType]; ok {
		return append([]string(nil), categories...)
	}
	return []string{"residential"}
}

// SetCategories overrides the category mapping of a property type
func (s *Segments) SetCategories(propertyType models.PropertyType, categories []string) error {
	if !propertyType.Valid() {
		return fmt.Errorf("unknown property type: %s", propertyType)
	}
	if len(categories) == 0 {
		return fmt.Errorf("no categories for property type: %s", propertyType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[propertyType] = append([]string(nil), categories...)
	return nil
}

// NeighborhoodCoefficient returns the premium or discount of a neighborhood,
// 1.0 when unknown
func (s *Segments) NeighborhoodCoefficient(neighborhood string) float64 {
	key := normalize.Name(neighborhood)
	if key == "" {
		return 1.0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if coefficient, ok := s.coefficients[key]; ok {
		return coefficient
	}
	return 1.0
}

// SetCoefficient overrides the coefficient of a neighborhood
func (s *Segments) SetCoefficient(neighborhood string, coefficient float64) error {
	key := normalize.Name(neighborhood)
	if key == "" {
		return fmt.Errorf("empty neighborhood name")
	}
	if coefficient <= 0 {
		return fmt.Errorf("invalid coefficient for %s: %v", neighborhood, coefficient)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.coefficients[key] = coefficient
	return nil
}

// RemoveCoefficient drops a neighborhood override and reports whether it existed
func (s *Segments) RemoveCoefficient(neighborhood string) bool {
	key := normalize.Name(neighborhood)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coefficients[key]; !ok {
		return false
	}
	delete(s.coefficients, key)
	return true
}

// Snapshot copies the current tables in the layout of a segments file
func (s *Segments) Snapshot() SegmentFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file := SegmentFile{
		Categories:   make(map[models.PropertyType][]string, len(s.categories)),
		Neighborhood: make(map[string]float64, len(s.coefficients)),
	}
	for k, v := range s.categories {
		file.Categories[k] = append([]string(nil), v...)
	}
	for k, v := range s.coefficients {
		file.Neighborhood[k] = v
	}
	return file
}
