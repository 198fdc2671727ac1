package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Querier is the subset of a pgx pool the updater reads through
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Updater periodically updates metrics from the database
type Updater struct {
	db       Querier
	stat     func() *pgxpool.Stat
	interval time.Duration
}

// NewUpdater creates a new metrics updater. stat may be nil when pool
// statistics are not available.
func NewUpdater(db Querier, stat func() *pgxpool.Stat, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Updater{
		db:       db,
		stat:     stat,
		interval: interval,
	}
}

// Run updates metrics until ctx is cancelled
func (u *Updater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-ctx.Done():
			log.Info().Msg("Metrics updater stopped")
			return nil
		}
	}
}

// update fetches and updates all metrics
func (u *Updater) update(ctx context.Context) {
	u.updateObjectCounts(ctx)
	u.updateDatabaseMetrics()
}

// updateObjectCounts sets the stored object gauge for every class
func (u *Updater) updateObjectCounts(ctx context.Context) {
	rows, err := u.db.Query(ctx, `SELECT class, COUNT(*) FROM objects GROUP BY class`)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch object counts")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var class string
		var count int64
		if err := rows.Scan(&class, &count); err != nil {
			log.Error().Err(err).Msg("Failed to scan object count")
			return
		}
		StoredObjects.WithLabelValues(class).Set(float64(count))
	}
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Failed to iterate object counts")
	}
}

// updateDatabaseMetrics updates database pool metrics
func (u *Updater) updateDatabaseMetrics() {
	if u.stat == nil {
		return
	}
	stat := u.stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
