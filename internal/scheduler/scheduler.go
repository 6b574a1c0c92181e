package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// JobType represents the periodic maintenance jobs
type JobType int

const (
	JobTypePrune JobType = iota
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypePrune:
		return "prune"
	default:
		return "unknown"
	}
}

// Pruner deletes removed listings that left the archive window
type Pruner interface {
	PruneRemovedListings(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler periodically prunes removed listings older than the archive
// window so comparable searches only see recent market evidence
type Scheduler struct {
	pruner      Pruner
	logger      *logrus.Logger
	interval    time.Duration
	archiveDays int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	jobMutex    sync.Mutex // Ensures sequential job execution
	now         func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(pruner Pruner, logger *logrus.Logger, interval time.Duration, archiveDays int) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &Scheduler{
		pruner:      pruner,
		logger:      logger,
		interval:    interval,
		archiveDays: archiveDays,
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler runs a prune at startup and then once per interval
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.Info("Running startup retention job")
	s.runJob()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runJob()
		}
	}
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypePrune.String()).Error("Retention job failed")
	}
}

// RunOnce prunes listings removed before the archive window and returns the
// number of deleted rows
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	if s.archiveDays <= 0 {
		s.logger.Debug("Archive window disabled, skipping retention job")
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.archiveDays)
	s.logger.WithFields(logrus.Fields{
		"job_type": JobTypePrune.String(),
		"cutoff":   cutoff.Format(time.RFC3339),
	}).Info("Starting retention job")

	deleted, err := s.pruner.PruneRemovedListings(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"job_type": JobTypePrune.String(),
		"deleted":  deleted,
	}).Info("Retention job completed successfully")
	return deleted, nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
