package database

import (
	"fmt"

	"avm/internal/models"

	"gorm.io/gorm"
)

var listingColumns = `
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	price TEXT NOT NULL DEFAULT '',
	price_value REAL,
	area_text TEXT NOT NULL DEFAULT '',
	area_sqm REAL,
	location_text TEXT NOT NULL DEFAULT '',
	location_key TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	district TEXT NOT NULL DEFAULT '',
	neighborhood TEXT NOT NULL DEFAULT '',
	district_key TEXT NOT NULL DEFAULT '',
	neighborhood_key TEXT NOT NULL DEFAULT '',
	latitude REAL,
	longitude REAL,
	crawled_at TEXT NOT NULL`

func (d *Database) RunMigrations() error {
	_, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS listings (` + listingColumns + `);`)
	if err != nil {
		return fmt.Errorf("failed to create listings table: %v", err)
	}

	_, err = d.db.Exec(`CREATE TABLE IF NOT EXISTS removed_listings (` + listingColumns + `,
		removed_at TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("failed to create removed_listings table: %v", err)
	}

	for _, table := range []string{"listings", "removed_listings"} {
		_, err = d.db.Exec(fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_%[1]s_segment
			ON %[1]s(category, transaction_type, district_key, area_sqm);
		`, table))
		if err != nil {
			return err
		}

		_, err = d.db.Exec(fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_%[1]s_crawled_at
			ON %[1]s(crawled_at);
		`, table))
		if err != nil {
			return err
		}
	}

	_, err = d.db.Exec(`CREATE INDEX IF NOT EXISTS idx_removed_listings_removed_at ON removed_listings(removed_at);`)
	if err != nil {
		return err
	}

	return MigrateSchema(d.gorm)
}

// MigrateSchema creates the valuation archive tables
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ValuationRecord{}); err != nil {
		return fmt.Errorf("failed to migrate valuation archive: %w", err)
	}
	return nil
}
