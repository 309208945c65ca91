package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/pkg/logger"
)

// DefaultMonitorInterval is the period between two scan cycles
const DefaultMonitorInterval = 5 * time.Second

type blockScanner interface {
	ScanNewBlocks(ctx context.Context) (*entities.ScanReport, error)
	Status(ctx context.Context) (*entities.MonitorStatus, error)
}

// BlockMonitorJob runs a block scan on a fixed interval
type BlockMonitorJob struct {
	monitor  blockScanner
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time

	mu      sync.Mutex
	running bool
	nextRun time.Time
}

func NewBlockMonitorJob(monitor blockScanner, interval time.Duration) *BlockMonitorJob {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &BlockMonitorJob{
		monitor:  monitor,
		interval: interval,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

func (j *BlockMonitorJob) Start(ctx context.Context) {
	logger.Info(ctx, "Starting block monitor", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.setRunning(true)
	defer j.setRunning(false)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Block monitor stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Block monitor stopped")
			return
		case <-ticker.C:
			j.scheduleNext()
			j.scan(ctx)
		}
	}
}

func (j *BlockMonitorJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *BlockMonitorJob) setRunning(running bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = running
	if running {
		j.nextRun = j.now().Add(j.interval)
	}
}

func (j *BlockMonitorJob) scheduleNext() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextRun = j.now().Add(j.interval)
}

func (j *BlockMonitorJob) scan(ctx context.Context) {
	report, err := j.monitor.ScanNewBlocks(ctx)
	if err != nil {
		logger.Error(ctx, "Error in block scan", zap.Error(err))
		return
	}
	if report.Skipped && report.Reason != "" {
		logger.Debug(ctx, "Block scan skipped", zap.String("reason", report.Reason))
	}
}

// TriggerScan runs one cycle immediately, outside the schedule
func (j *BlockMonitorJob) TriggerScan(ctx context.Context) (*entities.ScanReport, error) {
	logger.Info(ctx, "Manual scan triggered")
	return j.monitor.ScanNewBlocks(ctx)
}

// Status adds the loop state to the cursor view of the monitor
func (j *BlockMonitorJob) Status(ctx context.Context) (*entities.MonitorStatus, error) {
	status, err := j.monitor.Status(ctx)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	status.IsActive = j.running
	next := time.Duration(0)
	if j.running {
		next = j.nextRun.Sub(j.now()).Round(time.Second)
		if next < 0 {
			next = 0
		}
	}
	status.NextScanIn = next.String()
	return status, nil
}
