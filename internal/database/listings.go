package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"avm/internal/models"
	"avm/internal/normalize"
)

const listingSelect = `id, title, price, area_text, location_text, category, transaction_type,
	district, neighborhood, latitude, longitude, crawled_at`

// pricePerAreaSelect projects the numeric columns used by the aggregate queries
const pricePerAreaSelect = `price_value / area_sqm AS price_per_area, crawled_at`

// segmentFilter builds the WHERE clause shared by the active and removed
// listing tables
func segmentFilter(q models.ListingQuery, numeric bool) (string, []interface{}) {
	clauses := []string{"1 = 1"}
	var args []interface{}

	if len(q.Categories) > 0 {
		clauses = append(clauses, "category IN (?"+strings.Repeat(", ?", len(q.Categories)-1)+")")
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}
	if q.TransactionType != "" {
		clauses = append(clauses, "transaction_type = ?")
		args = append(args, q.TransactionType)
	}
	if numeric {
		clauses = append(clauses, "price_value IS NOT NULL", "area_sqm > 0")
	}
	if q.PriceMin > 0 {
		clauses = append(clauses, "price_value > ?")
		args = append(args, q.PriceMin)
	}
	if q.AreaMin > 0 {
		clauses = append(clauses, "area_sqm >= ?")
		args = append(args, q.AreaMin)
	}
	if q.AreaMax > 0 {
		clauses = append(clauses, "area_sqm <= ?")
		args = append(args, q.AreaMax)
	}
	if q.PricePerAreaMin > 0 {
		clauses = append(clauses, "area_sqm > 0", "price_value / area_sqm >= ?")
		args = append(args, q.PricePerAreaMin)
	}
	if q.PricePerAreaMax > 0 {
		clauses = append(clauses, "area_sqm > 0", "price_value / area_sqm <= ?")
		args = append(args, q.PricePerAreaMax)
	}
	if q.DistrictKey != "" {
		clauses = append(clauses, "district_key = ?")
		args = append(args, q.DistrictKey)
	}
	if q.NeighborhoodKey != "" {
		// Crawled neighborhoods are spelled inconsistently, so containment in
		// either direction counts, as do suffixed spellings in the location text
		alternatives := []string{
			"neighborhood_key = ?",
			"(neighborhood_key <> '' AND (neighborhood_key LIKE '%' || ? || '%' OR ? LIKE '%' || neighborhood_key || '%'))",
		}
		args = append(args, q.NeighborhoodKey, q.NeighborhoodKey, q.NeighborhoodKey)
		for _, pattern := range normalize.KeyPatterns(q.NeighborhoodKey)[1:] {
			alternatives = append(alternatives, "location_key LIKE ?")
			args = append(args, "%"+pattern+"%")
		}
		clauses = append(clauses, "("+strings.Join(alternatives, " OR ")+")")
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "crawled_at >= ?")
		args = append(args, q.Since.UTC().Format(timeLayout))
	}

	return strings.Join(clauses, " AND "), args
}

// segmentUnion selects from active listings and, when requested, from
// listings removed within the archive window
func segmentUnion(q models.ListingQuery, columns string, numeric bool, now time.Time) (string, []interface{}) {
	where, args := segmentFilter(q, numeric)
	query := fmt.Sprintf(`SELECT %s, 'active' AS status, NULL AS removed_at FROM listings WHERE %s`, columns, where)

	if q.IncludeArchivedWithinDays > 0 {
		cutoff := now.AddDate(0, 0, -q.IncludeArchivedWithinDays).UTC().Format(timeLayout)
		query += fmt.Sprintf(`
		UNION ALL
		SELECT %s, 'archived' AS status, removed_at FROM removed_listings WHERE %s AND removed_at >= ?`, columns, where)
		args = append(args, args...)
		args = append(args, cutoff)
	}

	return query, args
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SearchListings returns listings of a segment, active first and most
// recently crawled first within each status
func (d *Database) SearchListings(ctx context.Context, q models.ListingQuery) ([]models.ListingRecord, error) {
	union, args := segmentUnion(q, listingSelect, false, time.Now())
	query := `SELECT * FROM (` + union + `)
		ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, crawled_at DESC, id ASC
		LIMIT ?`
	args = append(args, limitOrAll(q.Limit))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	var listings []models.ListingRecord
	for rows.Next() {
		var r models.ListingRecord
		var latitude, longitude sql.NullFloat64
		var crawledAt, removedAt sql.NullString
		var status string

		err := rows.Scan(
			&r.ID,
			&r.Title,
			&r.Price,
			&r.AreaText,
			&r.LocationText,
			&r.Category,
			&r.TransactionType,
			&r.District,
			&r.Neighborhood,
			&latitude,
			&longitude,
			&crawledAt,
			&status,
			&removedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}

		// Handle nullable coordinates
		if latitude.Valid {
			lat := latitude.Float64
			r.Latitude = &lat
		}
		if longitude.Valid {
			lng := longitude.Float64
			r.Longitude = &lng
		}

		r.CrawledAt = parseTime(crawledAt)
		if removedAt.Valid {
			t := parseTime(removedAt)
			r.RemovedAt = &t
		}
		r.Status = models.ListingStatus(status)

		listings = append(listings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return listings, nil
}

// PricePerAreaSamples returns the price-per-area of every listing in the segment
func (d *Database) PricePerAreaSamples(ctx context.Context, q models.ListingQuery) ([]float64, error) {
	union, args := segmentUnion(q, pricePerAreaSelect, true, time.Now())
	query := `SELECT price_per_area FROM (` + union + `) ORDER BY price_per_area LIMIT ?`
	args = append(args, limitOrAll(q.Limit))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price samples: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan price sample: %w", err)
		}
		samples = append(samples, v)
	}
	return samples, rows.Err()
}

// AveragePricePerArea returns the mean price-per-area of a segment and the
// number of listings it was computed from
func (d *Database) AveragePricePerArea(ctx context.Context, q models.ListingQuery) (float64, int, error) {
	union, args := segmentUnion(q, pricePerAreaSelect, true, time.Now())
	query := `SELECT COALESCE(AVG(price_per_area), 0), COUNT(*) FROM (` + union + `)`

	var avg float64
	var count int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to query average price per area: %w", err)
	}
	return avg, count, nil
}

// PriceBuckets groups the segment by crawl period, oldest period first
func (d *Database) PriceBuckets(ctx context.Context, q models.ListingQuery, interval models.BucketInterval) ([]models.PriceBucket, error) {
	format := "%Y-%m"
	if interval == models.BucketWeek {
		format = "%Y-W%W"
	}

	union, args := segmentUnion(q, pricePerAreaSelect, true, time.Now())
	query := `
		SELECT
			strftime(?, crawled_at) AS period,
			AVG(price_per_area),
			MIN(price_per_area),
			MAX(price_per_area),
			COUNT(*)
		FROM (` + union + `)
		GROUP BY period
		ORDER BY period ASC`
	args = append([]interface{}{format}, args...)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price buckets: %w", err)
	}
	defer rows.Close()

	var buckets []models.PriceBucket
	for rows.Next() {
		var b models.PriceBucket
		var period sql.NullString
		if err := rows.Scan(&period, &b.AvgPricePerArea, &b.MinPricePerArea, &b.MaxPricePerArea, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan price bucket: %w", err)
		}
		if !period.Valid {
			continue
		}
		b.Period = period.String
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// SegmentSummary aggregates listing counts, time on market and the
// price-per-area range of a segment
func (d *Database) SegmentSummary(ctx context.Context, q models.ListingQuery) (models.SegmentSummary, error) {
	now := time.Now()
	union, args := segmentUnion(q, pricePerAreaSelect, true, now)
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(julianday(COALESCE(removed_at, ?)) - julianday(crawled_at)), 0),
			COALESCE(MIN(price_per_area), 0),
			COALESCE(MAX(price_per_area), 0),
			COALESCE(AVG(price_per_area), 0)
		FROM (` + union + `)`
	args = append([]interface{}{now.UTC().Format(timeLayout)}, args...)

	var s models.SegmentSummary
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&s.TotalListings,
		&s.AvgDaysOnMarket,
		&s.MinPricePerArea,
		&s.MaxPricePerArea,
		&s.AvgPricePerArea,
	)
	if err != nil {
		return models.SegmentSummary{}, fmt.Errorf("failed to query segment summary: %w", err)
	}
	return s, nil
}

// InsertListings inserts or replaces a batch of active listings
func (d *Database) InsertListings(ctx context.Context, listings []models.ListingRecord) error {
	return d.insertListings(ctx, "listings", listings)
}

// InsertRemovedListings moves a batch of listings to the removed table
func (d *Database) InsertRemovedListings(ctx context.Context, listings []models.ListingRecord) error {
	return d.insertListings(ctx, "removed_listings", listings)
}

func nullableFloat(v float64, ok bool) interface{} {
	if !ok {
		return nil
	}
	return v
}

func (d *Database) insertListings(ctx context.Context, table string, listings []models.ListingRecord) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	columns := `id, title, price, price_value, area_text, area_sqm, location_text, location_key,
		category, transaction_type, district, neighborhood, district_key, neighborhood_key,
		latitude, longitude, crawled_at`
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	removed := table == "removed_listings"
	if removed {
		columns += ", removed_at"
		placeholders += ", ?"
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`, table, columns, placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var deleteActive *sql.Stmt
	if removed {
		deleteActive, err = tx.PrepareContext(ctx, `DELETE FROM listings WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete statement: %w", err)
		}
		defer deleteActive.Close()
	}

	for _, l := range listings {
		neighborhood := l.Neighborhood
		if neighborhood == "" {
			neighborhood = normalize.NeighborhoodFromLocation(l.LocationText)
		}
		crawledAt := l.CrawledAt
		if crawledAt.IsZero() {
			crawledAt = time.Now()
		}

		args := []interface{}{
			l.ID,
			l.Title,
			l.Price,
			nullableFloat(normalize.Amount(l.Price)),
			l.AreaText,
			nullableFloat(normalize.Amount(l.AreaText)),
			l.LocationText,
			normalize.District(l.LocationText),
			l.Category,
			l.TransactionType,
			l.District,
			neighborhood,
			normalize.District(l.District),
			normalize.Name(neighborhood),
			l.Latitude,
			l.Longitude,
			crawledAt.UTC().Format(timeLayout),
		}
		if removed {
			removedAt := time.Now()
			if l.RemovedAt != nil {
				removedAt = *l.RemovedAt
			}
			args = append(args, removedAt.UTC().Format(timeLayout))
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert listing %d: %w", l.ID, err)
		}
		if removed {
			if _, err := deleteActive.ExecContext(ctx, l.ID); err != nil {
				return fmt.Errorf("failed to remove active listing %d: %w", l.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// PruneRemovedListings deletes removed listings older than the cutoff and
// returns how many were deleted
func (d *Database) PruneRemovedListings(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM removed_listings WHERE removed_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune removed listings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
