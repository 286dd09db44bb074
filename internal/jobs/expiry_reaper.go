// Package jobs holds the background maintenance loops that run alongside
// the queue consumer.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alertfunnel/alertfunnel/internal/database"
)

// DefaultReapInterval is how often the expiry reaper sweeps.
const DefaultReapInterval = 6 * time.Hour

// ExpiryReaper deletes alert state rows whose TTL has passed. The pipeline
// itself never deletes rows; this sweep is the only thing that does.
type ExpiryReaper struct {
	db *gorm.DB
}

// NewExpiryReaper creates a reaper over db.
func NewExpiryReaper(db *gorm.DB) *ExpiryReaper {
	return &ExpiryReaper{db: db}
}

// Reap deletes every expired row and returns how many were removed.
func (r *ExpiryReaper) Reap(ctx context.Context) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC().Unix()).
		Delete(&database.AlertState{})
	return tx.RowsAffected, tx.Error
}

// Start sweeps on the interval until ctx is cancelled.
func (r *ExpiryReaper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reaped, err := r.Reap(ctx)
			if err != nil {
				log.Error().Err(err).Msg("expiry reaper sweep failed")
			} else if reaped > 0 {
				log.Info().Int64("reaped", reaped).Msg("expired alert states removed")
			}
		case <-ctx.Done():
			log.Info().Msg("expiry reaper stopped")
			return
		}
	}
}
