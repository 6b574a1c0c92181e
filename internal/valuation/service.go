package valuation

import (
	"context"
	"strings"
	"time"

	"avm/internal/models"

	"github.com/sirupsen/logrus"
)

// Narrator turns a result into a readable paragraph. An empty answer is valid.
type Narrator interface {
	Summarize(ctx context.Context, input models.ValuationInput, result *models.ValuationResult) (string, error)
}

// Archiver stores a finished valuation and returns its id
type Archiver interface {
	Save(ctx context.Context, input models.ValuationInput, result *models.ValuationResult) (string, error)
}

// LocationResolver fills district and neighborhood names from coordinates
type LocationResolver interface {
	Resolve(ctx context.Context, loc models.LocationPoint) models.LocationPoint
}

// Service runs a full valuation request: location resolution, estimate,
// narrative and archiving. Only the estimate can fail a request.
type Service struct {
	engine           *Engine
	resolver         LocationResolver
	narrator         Narrator
	archiver         Archiver
	narrativeTimeout time.Duration
	logger           *logrus.Logger
}

// NewService wires the collaborators. resolver, narrator and archiver may be nil.
func NewService(engine *Engine, resolver LocationResolver, narrator Narrator, archiver Archiver, narrativeTimeout time.Duration, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if narrativeTimeout <= 0 {
		narrativeTimeout = 10 * time.Second
	}
	return &Service{
		engine:           engine,
		resolver:         resolver,
		narrator:         narrator,
		archiver:         archiver,
		narrativeTimeout: narrativeTimeout,
		logger:           logger,
	}
}

func (s *Service) resolve(ctx context.Context, loc models.LocationPoint) models.LocationPoint {
	if s.resolver == nil {
		return loc
	}
	return s.resolver.Resolve(ctx, loc)
}

// Valuate returns the result and the archive id, which is empty when the
// result could not be archived
func (s *Service) Valuate(ctx context.Context, input models.ValuationInput) (*models.ValuationResult, string, error) {
	input.Location = s.resolve(ctx, input.Location)

	result, err := s.engine.Estimate(ctx, input.Location, input.Features)
	if err != nil {
		return nil, "", err
	}

	if s.narrator != nil {
		nctx, cancel := context.WithTimeout(ctx, s.narrativeTimeout)
		insight, err := s.narrator.Summarize(nctx, input, result)
		cancel()
		switch {
		case err != nil:
			s.logger.WithError(err).Warn("Narrative generation failed, using generated insight")
		case strings.TrimSpace(insight) != "":
			result.NarrativeInsight = strings.TrimSpace(insight)
		}
	}

	var id string
	if s.archiver != nil {
		id, err = s.archiver.Save(ctx, input, result)
		if err != nil {
			s.logger.WithError(err).Error("Failed to archive valuation")
			id = ""
		}
	}

	return result, id, nil
}

// Trend returns the market summary and price trend of the subject's segment
func (s *Service) Trend(ctx context.Context, loc models.LocationPoint, features models.PropertyFeatures) (models.MarketSummary, error) {
	if err := ValidateInput(loc, features); err != nil {
		return models.MarketSummary{}, err
	}
	loc = s.resolve(ctx, loc)
	return s.engine.Trends().MarketSummary(ctx, loc, features), nil
}
