// Package scheduler runs the background jobs of the labelling service
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/sirupsen/logrus"
)

const gtinRepairJob = "gtin_repair"

// GTINRepairer is the part of the GTIN flow the scheduler drives
type GTINRepairer interface {
	RepairAll(ctx context.Context, metadata *businessflow.ClientMetadata) (*dto.GTINRepairResponse, error)
}

// GTINRepairScheduler periodically repairs missing or invalid product GTINs. RepairAll
// holds a distributed lock, so with several instances only one repairs per tick.
type GTINRepairScheduler struct {
	repairer   GTINRepairer
	interval   time.Duration
	runTimeout time.Duration
	logger     logrus.FieldLogger

	wg sync.WaitGroup
}

func NewGTINRepairScheduler(repairer GTINRepairer, interval, runTimeout time.Duration, logger logrus.FieldLogger) *GTINRepairScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if runTimeout <= 0 || runTimeout > interval {
		runTimeout = interval
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &GTINRepairScheduler{
		repairer:   repairer,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.WithField("job", gtinRepairJob),
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop
// function that waits for a running repair to return.
func (s *GTINRepairScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		s.wg.Wait()
	}
}

// RunOnce performs a single repair pass. It reports whether a pass actually ran.
func (s *GTINRepairScheduler) RunOnce(ctx context.Context) bool {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.repairer.RepairAll(runCtx, businessflow.SystemMetadata(gtinRepairJob))
	if err != nil {
		if businessflow.IsRepairInProgress(err) {
			s.logger.Debug("gtin repair skipped, another instance holds the lock")
			return false
		}
		entry := s.logger.WithError(err)
		if result != nil {
			entry = entry.WithFields(logrus.Fields{
				"scanned":  result.Scanned,
				"repaired": result.Repaired,
			})
		}
		entry.Error("gtin repair failed")
		return false
	}

	entry := s.logger.WithFields(logrus.Fields{
		"scanned":  result.Scanned,
		"repaired": result.Repaired,
		"failed":   result.Failed,
		"duration": time.Since(start).String(),
	})
	if result.Failed > 0 {
		entry.Warn("gtin repair finished with failures")
	} else if result.Repaired > 0 {
		entry.Info("gtin repair finished")
	} else {
		entry.Debug("gtin repair found nothing to do")
	}
	return true
}
