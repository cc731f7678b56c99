// Package cleanup enforces data retention in the background.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/faultmaven/faultmaven/pkg/config"
	"github.com/faultmaven/faultmaven/pkg/services"
)

// Service sweeps on an interval: closed cases past the retention window
// are hard-deleted (messages, turns, and events cascade with them), and
// event rows past their TTL are removed. Every sweep is idempotent, so
// multiple pods running it concurrently is harmless.
type Service struct {
	config       *config.RetentionConfig
	caseService  *services.CaseService
	eventService *services.EventService

	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(
	cfg *config.RetentionConfig,
	caseService *services.CaseService,
	eventService *services.EventService,
) *Service {
	return &Service{
		config:       cfg,
		caseService:  caseService,
		eventService: eventService,
	}
}

// Start launches the sweep loop; a no-op when retention is disabled or
// the loop is already running. The first sweep runs immediately.
func (s *Service) Start(ctx context.Context) {
	if !s.config.Enabled {
		slog.Info("Retention disabled; cleanup service not started")
		return
	}
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.config.SweepInterval.Std())
		defer ticker.Stop()

		for {
			s.sweep(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	slog.Info("Cleanup service started",
		"purge_after", s.config.PurgeAfter.Std(),
		"event_ttl", s.config.EventTTL.Std(),
		"interval", s.config.SweepInterval.Std())
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

// sweep runs both retention tasks. Failures are logged and skipped; the
// next tick retries.
func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.PurgeAfter.Std())
	if count, err := s.caseService.PurgeClosedCases(ctx, cutoff); err != nil {
		slog.Error("Retention: case purge failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: purged closed cases", "count", count)
	}

	if count, err := s.eventService.CleanupExpiredEvents(ctx, s.config.EventTTL.Std()); err != nil {
		slog.Error("Retention: event cleanup failed", "error", err)
	} else if count > 0 {
		slog.Info("Retention: cleaned up expired events", "count", count)
	}
}
