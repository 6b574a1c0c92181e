package database

import (
	"context"
	"errors"
	"fmt"

	"avm/internal/models"

	"gorm.io/gorm"
)

// InsertValuations writes a batch of archived valuations inside tx
func InsertValuations(tx *gorm.DB, records []*models.ValuationRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(records, 100).Error; err != nil {
		return fmt.Errorf("failed to insert valuations: %w", err)
	}
	return nil
}

// ListValuations returns archived valuations, newest first, with the total count
func (d *Database) ListValuations(ctx context.Context, limit, offset int) ([]models.ValuationRecord, int64, error) {
	var total int64
	if err := d.gorm.WithContext(ctx).Model(&models.ValuationRecord{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count valuations: %w", err)
	}

	var records []models.ValuationRecord
	err := d.gorm.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list valuations: %w", err)
	}

	return records, total, nil
}

// GetValuation returns one archived valuation
func (d *Database) GetValuation(ctx context.Context, id string) (*models.ValuationRecord, error) {
	var record models.ValuationRecord
	err := d.gorm.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get valuation: %w", err)
	}
	return &record, nil
}

// DeleteValuation removes one archived valuation
func (d *Database) DeleteValuation(ctx context.Context, id string) error {
	result := d.gorm.WithContext(ctx).Delete(&models.ValuationRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete valuation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
