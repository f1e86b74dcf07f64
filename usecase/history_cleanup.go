package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

// HistoryCleanupService prunes command history older than the retention window
type HistoryCleanupService struct {
	history   repositories.CommandHistory
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewHistoryCleanupService creates a cleanup service running every interval.
func NewHistoryCleanupService(history repositories.CommandHistory, retention, interval time.Duration, logger *zap.Logger) *HistoryCleanupService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &HistoryCleanupService{
		history:   history,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *HistoryCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("History cleanup service started",
		zap.Duration("retention", s.retention),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *HistoryCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("History cleanup service stopped")
	})
}

func (s *HistoryCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	initialTimer := time.NewTimer(time.Minute)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.RunOnce(context.Background())
		case <-ticker.C:
			s.RunOnce(context.Background())
		}
	}
}

// RunOnce prunes expired records and returns how many were removed.
func (s *HistoryCleanupService) RunOnce(ctx context.Context) int64 {
	if s.retention <= 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	deleted, err := s.history.PruneOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune command history", zap.Error(err))
		return 0
	}

	s.logger.Info("Command history cleanup completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
	return deleted
}
