package dupscan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/internal/repositories/actor"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/redis"
)

const schedulerLockKey = "duplicate_scan"

// Scheduler runs the duplicate scanner on a fixed interval. A Redis lock
// keeps concurrent instances from scanning the same window twice.
type Scheduler struct {
	scanner   *Scanner
	actorRepo *actor.Repository
	locker    *redis.Locker
	interval  time.Duration
	logger    ectologger.Logger
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewScheduler creates a new scan scheduler
func NewScheduler(scanner *Scanner, actorRepo *actor.Repository, locker *redis.Locker, interval time.Duration, logger ectologger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		scanner:   scanner,
		actorRepo: actorRepo,
		locker:    locker,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins the scan loop
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"interval": s.interval.String(),
	}).Info("Duplicate scan scheduler started")
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.WithContext(ctx).Info("Duplicate scan scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	log := s.logger.WithContext(ctx)

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, schedulerLockKey, s.interval)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				log.Debug("Another instance is scanning, skipping run")
				metrics.ScanRunsTotal.WithLabelValues("skipped").Inc()
				return
			}
			log.WithError(err).Error("Failed to acquire scan lock")
			metrics.ScanRunsTotal.WithLabelValues("error").Inc()
			return
		}
		defer lock.Release(ctx)
	}

	tenants, err := s.actorRepo.ListTenants(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list tenants for duplicate scan")
		metrics.ScanRunsTotal.WithLabelValues("error").Inc()
		return
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.scanner.Scan(ctx, tenantID); err != nil {
			log.WithError(err).WithFields(map[string]any{
				"tenant_id": tenantID,
			}).Error("Duplicate scan failed for tenant")
		}
	}
}
