// Package processor drains contact signals from Kafka and runs them
// through the resolution engine.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/matching"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Processor resolves incoming contact signals
type Processor struct {
	logger  ectologger.Logger
	engine  *matching.Engine
	emitter *events.Emitter
	workers int
}

// NewProcessor creates a new signal processor
func NewProcessor(logger ectologger.Logger, engine *matching.Engine, emitter *events.Emitter, workers int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		logger:  logger,
		engine:  engine,
		emitter: emitter,
		workers: workers,
	}
}

// ProcessMessage handles an incoming Kafka message. Returning an error
// leaves the offset uncommitted so the signal is redelivered.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"key":    msg.Key,
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	sig := msg.Signal
	if sig == nil {
		if err := msg.ParseSignal(); err != nil {
			log.WithError(err).Error("Failed to parse signal envelope")
			return nil // unparseable, skip
		}
		sig = msg.Signal
	}

	if sig.TenantID == "" || sig.SignalID == "" {
		log.Warn("Skipping signal: missing tenant_id or signal_id")
		metrics.SignalsProcessedTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	result, err := p.resolve(ctx, sig)
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			// Transient. Leave the offset uncommitted and let the
			// redelivery retry once the store is back.
			metrics.SignalsProcessedTotal.WithLabelValues("requeued").Inc()
			return err
		}
		log.WithError(err).Error("Failed to resolve signal")
		metrics.SignalsProcessedTotal.WithLabelValues("failed").Inc()
		return nil
	}

	metrics.SignalsProcessedTotal.WithLabelValues("resolved").Inc()

	if p.emitter != nil {
		if err := p.emitter.EmitDecision(ctx, sig.TenantID, sig.SignalID, result); err != nil {
			// The decision is durable; event emission is best effort
			log.WithError(err).Warn("Failed to emit decision event")
		}
	}

	return nil
}

// ProcessBatch resolves a slice of signals with per-signal isolation.
// One malformed or failing signal never blocks the rest of the batch.
func (p *Processor) ProcessBatch(ctx context.Context, signals []*models.Signal) *models.BatchSummary {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessBatch")
	defer span.End()

	summary := &models.BatchSummary{}
	if len(signals) == 0 {
		return summary
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan *models.Signal)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sig := range work {
				result, err := p.resolve(ctx, sig)

				mu.Lock()
				summary.Add(result, err)
				mu.Unlock()

				if err != nil {
					p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
						"signal_id": sig.SignalID,
					}).Error("Failed to resolve signal in batch")
					continue
				}

				if p.emitter != nil {
					if err := p.emitter.EmitDecision(ctx, sig.TenantID, sig.SignalID, result); err != nil {
						p.logger.WithContext(ctx).WithError(err).Warn("Failed to emit decision event")
					}
				}
			}
		}()
	}

	for _, sig := range signals {
		work <- sig
	}
	close(work)
	wg.Wait()

	return summary
}

func (p *Processor) resolve(ctx context.Context, sig *models.Signal) (*models.MatchResult, error) {
	start := time.Now()
	result, err := p.engine.Resolve(ctx, sig)
	if err != nil {
		return nil, err
	}
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	if result.Replayed {
		metrics.ReplaysTotal.Inc()
	} else {
		metrics.DecisionsTotal.WithLabelValues(string(result.Decision), string(result.Method)).Inc()
		if result.Conflicted {
			metrics.ExactConflictsTotal.Inc()
		}
	}

	return result, nil
}
