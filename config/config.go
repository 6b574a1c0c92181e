package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server struct {
		Port        string   `env:"PORT" envDefault:"5250"`
		GinMode     string   `env:"GIN_MODE" envDefault:"release"`
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Database struct {
		// Path of the SQLite file holding listings and archived valuations
		Path string `env:"DATABASE_PATH" envDefault:"database/listings.db"`
	}

	POI struct {
		// Without an API key the scanner falls back to placeholder POIs
		APIKey      string        `env:"GOOGLE_MAPS_API_KEY"`
		BaseURL     string        `env:"POI_BASE_URL" envDefault:"https://places.googleapis.com/v1/places:searchNearby"`
		Timeout     time.Duration `env:"POI_TIMEOUT" envDefault:"5s"`
		Concurrency int           `env:"POI_CONCURRENCY" envDefault:"6"`
		RateLimit   int           `env:"POI_RATE_LIMIT" envDefault:"10"`
		MaxResults  int           `env:"POI_MAX_RESULTS" envDefault:"10"`
	}

	Cache struct {
		// Empty address disables the POI cache
		RedisAddr string        `env:"REDIS_ADDR"`
		TTL       time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	}

	Narrative struct {
		APIKey  string        `env:"OPENAI_API_KEY"`
		URL     string        `env:"NARRATIVE_URL" envDefault:"https://api.openai.com/v1/chat/completions"`
		Model   string        `env:"NARRATIVE_MODEL" envDefault:"gpt-4o-mini"`
		Timeout time.Duration `env:"NARRATIVE_TIMEOUT" envDefault:"8s"`
	}

	Geocoding struct {
		Enabled  bool   `env:"GEOCODING_ENABLED" envDefault:"false"`
		BaseURL  string `env:"GEOCODING_URL" envDefault:"https://nominatim.openstreetmap.org/reverse"`
		CacheDir string `env:"GEOCODE_CACHE_DIR"`
	}

	Valuation struct {
		// fixed or dynamic
		ConfidenceModel string `env:"VALUATION_CONFIDENCE_MODEL" envDefault:"fixed"`
		SegmentsFile    string `env:"SEGMENTS_FILE"`
		BoundariesFile  string `env:"BOUNDARIES_FILE"`
		// Days a removed listing still counts as market evidence
		ArchiveWindowDays int `env:"ARCHIVE_WINDOW_DAYS" envDefault:"180"`
		TrendEnabled      bool `env:"TREND_ENABLED" envDefault:"true"`
	}

	// BatchProcessing configuration for archiving valuation results
	BatchProcessing struct {
		// Maximum number of records to accumulate before writing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"20"`

		// Maximum time to wait before writing a non-full batch (in seconds)
		MaxBatchWaitTime int `env:"BATCH_WAIT_TIME" envDefault:"5"`

		// Number of concurrent batch writers
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"1"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"2"`

		// Capacity of the pending record queue
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"256"`
	}

	Retention struct {
		// Hours between prunes of removed listings older than the archive window
		IntervalHours int `env:"RETENTION_INTERVAL_HOURS" envDefault:"24"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
