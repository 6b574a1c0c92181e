package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avm/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	DefaultURL   = "https://api.openai.com/v1/chat/completions"
	DefaultModel = "gpt-4o-mini"
)

const systemPrompt = "You are a real estate appraiser. You explain automated valuation results " +
	"to property owners in clear, factual language in three or four sentences. " +
	"Never invent numbers that are not in the data you are given."

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Generator writes the insight paragraph of a valuation with an
// OpenAI-compatible chat completions API
type Generator struct {
	apiKey     string
	apiURL     string
	model      string
	enabled    bool
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewGenerator creates a generator. Without an API key it is disabled and
// Summarize returns an empty string.
func NewGenerator(apiKey, apiURL, model string, timeout time.Duration, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	if apiURL == "" {
		apiURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		apiKey:  apiKey,
		apiURL:  apiURL,
		model:   model,
		enabled: apiKey != "",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Enabled reports whether an API key is configured
func (g *Generator) Enabled() bool {
	return g.enabled
}

func buildPrompt(input models.ValuationInput, result *models.ValuationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Explain this property valuation.\n\nPROPERTY:\n")
	fmt.Fprintf(&b, "- Type: %s, area %.0f m²\n", input.Features.PropertyType, input.Features.Area)
	if input.Location.District != "" || input.Location.Neighborhood != "" {
		fmt.Fprintf(&b, "- Location: %s %s\n", input.Location.Neighborhood, input.Location.District)
	}
	if input.Features.BuildingAge != nil {
		fmt.Fprintf(&b, "- Building age: %d years\n", *input.Features.BuildingAge)
	}

	fmt.Fprintf(&b, "\nRESULT:\n")
	fmt.Fprintf(&b, "- Estimated value: %d (range %d to %d)\n", result.EstimatedValue, result.PriceRange.Min, result.PriceRange.Max)
	fmt.Fprintf(&b, "- Price per m²: %d\n", result.PricePerArea)
	fmt.Fprintf(&b, "- Confidence: %d/100\n", result.ConfidenceScore)
	fmt.Fprintf(&b, "- Comparables: %d, market trend %s (%.1f%%)\n",
		result.MarketAnalysis.TotalComparables, result.MarketAnalysis.Trend, result.MarketAnalysis.TrendPercentage)
	fmt.Fprintf(&b, "- Location score: %d/100\n", result.LocationScore.Total)
	if len(result.LocationScore.Advantages) > 0 {
		fmt.Fprintf(&b, "- Advantages: %s\n", strings.Join(result.LocationScore.Advantages, "; "))
	}
	if len(result.LocationScore.Disadvantages) > 0 {
		fmt.Fprintf(&b, "- Disadvantages: %s\n", strings.Join(result.LocationScore.Disadvantages, "; "))
	}

	return b.String()
}

// Summarize returns the insight paragraph for a result
func (g *Generator) Summarize(ctx context.Context, input models.ValuationInput, result *models.ValuationResult) (string, error) {
	if !g.enabled {
		return "", nil
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(input, result)},
		},
		MaxTokens: 300,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("narrative request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", err
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from narrative service")
	}

	g.logger.WithField("model", g.model).Debug("Generated valuation narrative")
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
