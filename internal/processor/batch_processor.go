package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"avm/config"
	"avm/internal/database"
	"avm/internal/models"
	"avm/internal/queue"
)

// ErrStopped is returned for records handed over after Stop
var ErrStopped = errors.New("batch processor stopped")

// Transactor is the part of *gorm.DB the processor needs
type Transactor interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchProcessor archives valuation results in batched transactions
type BatchProcessor struct {
	db        Transactor
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.RecordQueue
	pending   chan *models.ValuationRecord
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	now       func() time.Time
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db Transactor, queue *queue.RecordQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:      db,
		queue:   queue,
		config:  config,
		logger:  logger,
		pending: make(chan *models.ValuationRecord, max(1, config.BatchProcessing.MaxBatchSize)),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// NewRecord builds the archive row for a valuation
func NewRecord(input models.ValuationInput, result *models.ValuationResult, createdAt time.Time) *models.ValuationRecord {
	record := &models.ValuationRecord{
		ID:              uuid.New().String(),
		PropertyType:    string(input.Features.PropertyType),
		Address:         input.Location.Address,
		District:        input.Location.District,
		Neighborhood:    input.Location.Neighborhood,
		Latitude:        input.Location.Lat,
		Longitude:       input.Location.Lng,
		Area:            input.Features.Area,
		Features:        input.Features,
		EstimatedValue:  result.EstimatedValue,
		MinValue:        result.PriceRange.Min,
		MaxValue:        result.PriceRange.Max,
		PricePerArea:    result.PricePerArea,
		ConfidenceScore: result.ConfidenceScore,
		Insight:         result.NarrativeInsight,
		Result:          *result,
		IPAddress:       input.IPAddress,
		UserAgent:       input.UserAgent,
		CreatedAt:       createdAt,
	}
	if input.Contact != nil {
		record.ContactName = input.Contact.Name
		record.ContactEmail = input.Contact.Email
		record.ContactPhone = input.Contact.Phone
	}
	return record
}

// Save queues a valuation for archiving and returns the id it will be stored
// under. The write happens in the background.
func (p *BatchProcessor) Save(ctx context.Context, input models.ValuationInput, result *models.ValuationResult) (string, error) {
	if result == nil {
		return "", errors.New("no result to archive")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	record := NewRecord(input, result, p.now())
	if err := p.queue.Push([]*models.ValuationRecord{record}); err != nil {
		return "", fmt.Errorf("failed to queue valuation: %w", err)
	}
	return record.ID, nil
}

// Start begins processing batches from the queue
func (p *BatchProcessor) Start() {
	p.queue.Subscribe(p.enqueue)
	for i := 0; i < max(1, p.config.BatchProcessing.ProcessorCount); i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}
	p.queue.Start()
}

// Stop drains the queue, writes what is pending and waits for the writers
func (p *BatchProcessor) Stop() {
	p.queue.Close()
	p.cancel()
	p.waitGroup.Wait()
}

// enqueue hands records from the queue to the writers
func (p *BatchProcessor) enqueue(records []*models.ValuationRecord) error {
	for _, record := range records {
		select {
		case p.pending <- record:
		case <-p.ctx.Done():
			return ErrStopped
		}
	}
	return nil
}

// processLoop collects records until the batch is full or the wait time has
// passed, then writes them
func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	maxSize := max(1, p.config.BatchProcessing.MaxBatchSize)
	wait := time.Duration(max(1, p.config.BatchProcessing.MaxBatchWaitTime)) * time.Second
	ticker := time.NewTicker(wait)
	defer ticker.Stop()

	batch := make([]*models.ValuationRecord, 0, maxSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.processBatch(batch); err != nil {
			p.logger.WithError(err).WithField("records", len(batch)).Error("Dropping valuation batch")
		}
		batch = make([]*models.ValuationRecord, 0, maxSize)
	}

	for {
		select {
		case record := <-p.pending:
			batch = append(batch, record)
			if len(batch) >= maxSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.ctx.Done():
			for {
				select {
				case record := <-p.pending:
					batch = append(batch, record)
				default:
					flush()
					return
				}
			}
		}
	}
}

// processBatch writes a batch of records with transaction and retry logic
func (p *BatchProcessor) processBatch(batch []*models.ValuationRecord) error {
	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second)
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.InsertValuations(tx, batch); err != nil {
				return fmt.Errorf("failed to insert valuation batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.Infof("Successfully archived batch of %d valuations", len(batch))
			return nil
		}

		p.logger.Errorf("Batch processing failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries+1, err)
}
