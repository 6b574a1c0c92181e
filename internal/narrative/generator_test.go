package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"avm/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() (models.ValuationInput, *models.ValuationResult) {
	input := models.ValuationInput{
		Location: models.LocationPoint{District: "Hendek", Neighborhood: "Kemaliye"},
		Features: models.PropertyFeatures{PropertyType: models.PropertyResidential, Area: 120},
	}
	result := &models.ValuationResult{
		EstimatedValue: 3000000,
		PriceRange:     models.PriceRange{Min: 2700000, Max: 3300000},
		LocationScore:  models.LocationScore{Total: 70, Advantages: []string{"Park - 300m"}},
	}
	return input, result
}

func TestGenerator_Disabled(t *testing.T) {
	g := NewGenerator("", "", "", time.Second, logrus.New())
	assert.False(t, g.Enabled())

	input, result := testResult()
	text, err := g.Summarize(context.Background(), input, result)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGenerator_Summarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "Estimated value: 3000000")
		assert.Contains(t, req.Messages[1].Content, "Park - 300m")

		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "  A well located flat.  "}}]}`))
	}))
	defer server.Close()

	g := NewGenerator("key", server.URL, "", time.Second, logrus.New())
	input, result := testResult()

	text, err := g.Summarize(context.Background(), input, result)
	require.NoError(t, err)
	assert.Equal(t, "A well located flat.", text)
}

func TestGenerator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "Non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "No choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": []}`))
			},
		},
		{
			name: "Timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			g := NewGenerator("key", server.URL, "", 50*time.Millisecond, logrus.New())
			input, result := testResult()
			_, err := g.Summarize(context.Background(), input, result)
			assert.Error(t, err)
		})
	}
}
