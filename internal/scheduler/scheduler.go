// Package scheduler drives the always-on analysis loop: every tick it runs
// the anomaly detectors and feeds whatever they found into the RCA engine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/vigia/internal/analyzer"
	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/models"
	"github.com/platformbuilds/vigia/internal/rca"
	"github.com/platformbuilds/vigia/internal/tracing"
	"github.com/platformbuilds/vigia/pkg/logger"
)

type Scheduler struct {
	analyzer analyzer.Engine
	rca      rca.Engine
	runtime  *config.Runtime
	tracer   *tracing.CycleTracer
	logger   logger.Logger

	// mu serializes cycles so a manual trigger cannot interleave with the
	// ticker. A slow cycle delays the next one instead of stacking up.
	mu   sync.Mutex
	done chan struct{}
}

func New(analyzerEngine analyzer.Engine, rcaEngine rca.Engine, runtime *config.Runtime, tracer *tracing.CycleTracer, log logger.Logger) *Scheduler {
	return &Scheduler{
		analyzer: analyzerEngine,
		rca:      rcaEngine,
		runtime:  runtime,
		tracer:   tracer,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop and returns immediately. The loop exits
// when ctx is cancelled; Done unblocks once it has.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Done reports loop termination, for shutdown sequencing.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	interval := s.runtime.Engine().TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, _, err := s.runCycle(ctx, "scheduled"); err != nil && ctx.Err() == nil {
				s.logger.Error("analysis cycle failed", "error", err)
			}
			// Pick up hot-reloaded intervals on the next tick.
			if next := s.runtime.Engine().TickInterval(); next > 0 && next != interval {
				interval = next
				ticker.Reset(interval)
				s.logger.Info("scheduler interval updated", "interval", interval.String())
			}
		}
	}
}

// TriggerNow runs one full cycle synchronously, used by the analyze endpoint.
// It shares the cycle lock with the background loop.
func (s *Scheduler) TriggerNow(ctx context.Context) (*models.AnalysisResult, []*models.Incident, error) {
	return s.runCycle(ctx, "manual")
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) (*models.AnalysisResult, []*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	ctx, span := s.tracer.StartCycleSpan(ctx, trigger)
	defer span.End()

	result, err := s.analyzer.RunAnalysis(ctx)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, nil, fmt.Errorf("analysis failed: %w", err)
	}

	var incidents []*models.Incident
	if len(result.Anomalies) > 0 {
		corrCtx, corrSpan := s.tracer.StartCorrelationSpan(ctx, len(result.Anomalies))
		incidents, err = s.rca.Correlate(corrCtx, result.Anomalies)
		corrSpan.End()
		if err != nil {
			s.tracer.RecordError(span, err)
			return result, incidents, fmt.Errorf("correlation failed: %w", err)
		}
	}

	s.tracer.RecordCycleMetrics(span, time.Since(start), result.AnomaliesDetected, len(incidents))

	if len(incidents) > 0 {
		s.logger.Info("cycle opened incidents",
			"trigger", trigger,
			"anomalies", result.AnomaliesDetected,
			"incidents", len(incidents),
		)
	}
	return result, incidents, nil
}
