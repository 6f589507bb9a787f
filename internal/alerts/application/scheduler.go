package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs periodic scans for a fixed set of tenants. Cross-tenant
// scans are independent; a tenant whose lock is busy is simply skipped until
// the next tick.
type Scheduler struct {
	scans    *ScanService
	tenants  []string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewScheduler constructs a scheduler.
func NewScheduler(scans *ScanService, tenants []string, interval, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if scans == nil {
		return nil, errors.New("scheduler: nil scan service")
	}
	if interval <= 0 {
		return nil, errors.New("scheduler: non-positive interval")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scans:    scans,
		tenants:  tenants,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// Start begins the scheduler loop and blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	for _, tenantID := range s.tenants {
		if tenantID == "" {
			continue
		}
		scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
		report, err := s.scans.Scan(scanCtx, tenantID, "")
		cancel()
		switch {
		case errors.Is(err, ErrScanBusy):
			s.logger.Debug("scan skipped, tenant busy", zap.String("tenant_id", tenantID))
		case err != nil:
			s.logger.Error("scheduled scan failed", zap.String("tenant_id", tenantID), zap.Error(err))
		case len(report.Errors) > 0:
			s.logger.Warn("scheduled scan finished with errors",
				zap.String("tenant_id", tenantID),
				zap.Int("errors", len(report.Errors)),
			)
		}
	}
}
