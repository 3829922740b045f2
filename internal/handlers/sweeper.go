package handlers

import (
	"context"
	"time"

	"github.com/callowcreation/sfs-api/internal/migration"
	"github.com/callowcreation/sfs-api/internal/rotation"
	"github.com/callowcreation/sfs-api/pkg/logging"
)

const sweepInterval = time.Minute

// Sweeper is the background maintenance loop: it reclaims expired pins and
// resumes interrupted migrations.
type Sweeper struct {
	registry *rotation.Registry
	migrator *migration.Migrator
	logger   logging.Logger
	interval time.Duration
}

func NewSweeper(registry *rotation.Registry, migrator *migration.Migrator, logger logging.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		migrator: migrator,
		logger:   logger,
		interval: sweepInterval,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting background sweeper")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Background sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.registry.SweepExpired(ctx); err != nil {
		s.logger.WithError(err).Warn("Pin sweep failed")
	}
	if err := s.migrator.Resume(ctx); err != nil {
		s.logger.WithError(err).Warn("Migration resume sweep failed")
	}
}
