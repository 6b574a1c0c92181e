// Package ingest loads crawler exports into the listings dataset.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"avm/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of listings written per insert
const DefaultBatchSize = 500

// Store is the part of the dataset the importer writes to
type Store interface {
	InsertListings(ctx context.Context, listings []models.ListingRecord) error
	InsertRemovedListings(ctx context.Context, listings []models.ListingRecord) error
}

// Item is one listing as written by the crawler
type Item struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"baslik"`
	Price        string      `json:"fiyat"`
	Area         string      `json:"m2"`
	Location     string      `json:"konum"`
	Category     string      `json:"category"`
	Transaction  string      `json:"transaction"`
	District     string      `json:"ilce"`
	Neighborhood string      `json:"mahalle"`
	Latitude     *float64    `json:"lat"`
	Longitude    *float64    `json:"lng"`
	CrawledAt    string      `json:"crawled_at"`
	RemovedAt    string      `json:"removed_at"`
}

// Message wraps items the way the crawler streams them: {"type":"items","data":[...]}.
// Lines without a type are read as a single item.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Stats counts what an import did
type Stats struct {
	Lines    int `json:"lines"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

var categories = map[string]string{
	"konut":  "residential",
	"arsa":   "land",
	"isyeri": "commercial",
	"işyeri": "commercial",
}

var transactions = map[string]string{
	"satilik": models.TransactionSale,
	"satılık": models.TransactionSale,
	"kiralik": models.TransactionRent,
	"kiralık": models.TransactionRent,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// mapCode translates crawler vocabulary, passing through values that are
// already in dataset form
func mapCode(table map[string]string, value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if mapped, ok := table[v]; ok {
		return mapped
	}
	return v
}

// Record converts a crawler item into a dataset listing
func (it Item) Record(now time.Time) (models.ListingRecord, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(it.ID.String()), 10, 64)
	if err != nil || id <= 0 {
		return models.ListingRecord{}, fmt.Errorf("invalid listing id %q", it.ID)
	}

	crawledAt, ok := parseTime(it.CrawledAt)
	if !ok {
		crawledAt = now
	}

	record := models.ListingRecord{
		ID:              id,
		Title:           strings.TrimSpace(it.Title),
		Price:           strings.TrimSpace(it.Price),
		AreaText:        strings.TrimSpace(it.Area),
		LocationText:    strings.TrimSpace(it.Location),
		Category:        mapCode(categories, it.Category),
		TransactionType: mapCode(transactions, it.Transaction),
		District:        strings.TrimSpace(it.District),
		Neighborhood:    strings.TrimSpace(it.Neighborhood),
		Latitude:        it.Latitude,
		Longitude:       it.Longitude,
		CrawledAt:       crawledAt,
		Status:          models.ListingActive,
	}
	if removedAt, ok := parseTime(it.RemovedAt); ok {
		record.RemovedAt = &removedAt
		record.Status = models.ListingArchived
	}
	return record, nil
}

// Importer reads crawler NDJSON exports into the dataset in batches
type Importer struct {
	store     Store
	batchSize int
	logger    *logrus.Logger
	now       func() time.Time
}

func NewImporter(store Store, batchSize int, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{store: store, batchSize: batchSize, logger: logger, now: time.Now}
}

// ImportFile imports the export at path. removed selects the removed
// listings table; their removal time defaults to the import time.
func (im *Importer) ImportFile(ctx context.Context, path string, removed bool) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	im.logger.WithFields(logrus.Fields{
		"file":    path,
		"removed": removed,
	}).Info("Starting listing import")

	return im.Import(ctx, f, removed)
}

// Import reads one JSON document per line. Malformed lines are logged and
// skipped; store failures abort the import.
func (im *Importer) Import(ctx context.Context, r io.Reader, removed bool) (Stats, error) {
	var stats Stats
	batch := make([]models.ListingRecord, 0, im.batchSize)
	now := im.now().UTC()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var err error
		if removed {
			err = im.store.InsertRemovedListings(ctx, batch)
		} else {
			err = im.store.InsertListings(ctx, batch)
		}
		if err != nil {
			return fmt.Errorf("failed to store batch: %w", err)
		}
		stats.Imported += len(batch)
		im.logger.WithField("imported", stats.Imported).Debug("Stored listing batch")
		batch = make([]models.ListingRecord, 0, im.batchSize)
		return nil
	}

	add := func(it Item) error {
		record, err := it.Record(now)
		if err != nil {
			im.logger.WithError(err).WithField("line", stats.Lines).Warn("Skipping listing")
			stats.Skipped++
			return nil
		}
		if removed && record.RemovedAt == nil {
			record.RemovedAt = &now
			record.Status = models.ListingArchived
		}
		batch = append(batch, record)
		if len(batch) >= im.batchSize {
			return flush()
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			im.logger.WithError(err).WithField("line", stats.Lines).Warn("Failed to parse export line")
			stats.Skipped++
			continue
		}

		switch msg.Type {
		case "":
			var it Item
			if err := json.Unmarshal([]byte(line), &it); err != nil {
				im.logger.WithError(err).WithField("line", stats.Lines).Warn("Failed to parse listing")
				stats.Skipped++
				continue
			}
			if err := add(it); err != nil {
				return stats, err
			}
		case "items":
			var items []Item
			if err := json.Unmarshal(msg.Data, &items); err != nil {
				im.logger.WithError(err).WithField("line", stats.Lines).Warn("Failed to parse items")
				stats.Skipped++
				continue
			}
			for _, it := range items {
				if err := add(it); err != nil {
					return stats, err
				}
			}
		case "complete", "error":
			im.logger.WithFields(logrus.Fields{
				"type": msg.Type,
				"data": string(msg.Data),
			}).Info("Crawler status message")
		default:
			im.logger.WithField("type", msg.Type).Warn("Unknown message type")
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read export: %w", err)
	}

	if err := flush(); err != nil {
		return stats, err
	}

	im.logger.WithFields(logrus.Fields{
		"lines":    stats.Lines,
		"imported": stats.Imported,
		"skipped":  stats.Skipped,
	}).Info("Listing import completed")

	return stats, nil
}
