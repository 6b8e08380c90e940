package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

const (
	defaultCleanupInterval = 30 * time.Minute
	initialCleanupDelay    = time.Minute
	cleanupTimeout         = 5 * time.Minute
)

// SessionCleanupService prunes assistant session records older than the retention window
type SessionCleanupService struct {
	sessionLog repositories.SessionLogRepository
	retention  time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     *zap.Logger
	stopChan   chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(sessionLog repositories.SessionLogRepository, retention time.Duration, logger *zap.Logger) *SessionCleanupService {
	return &SessionCleanupService{
		sessionLog: sessionLog,
		retention:  retention,
		interval:   defaultCleanupInterval,
		now:        time.Now,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started", zap.Duration("retention", s.retention))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial cleanup after 1 minute
	initialTimer := time.NewTimer(initialCleanupDelay)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup deletes the records of sessions that ended before the retention window
func (s *SessionCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	s.logger.Info("Starting session cleanup", zap.Time("cutoff", cutoff))

	deleted, err := s.sessionLog.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to delete expired sessions", zap.Error(err))
		return
	}

	s.logger.Info("Session cleanup completed successfully", zap.Int64("deleted", deleted))
}
