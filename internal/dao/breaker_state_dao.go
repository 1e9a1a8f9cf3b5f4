package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/breaker"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

// BreakerStateDao persists breaker snapshots; writes are guarded by the row version.
type BreakerStateDao interface {
	core.Component
	breaker.StateStore
}

type breakerStateDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`
	db *gorm.DB
}

func NewBreakerStateDao() BreakerStateDao {
	return &breakerStateDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_BREAKER, consts.COMPONENT_LOGGING)}
}

func (d *breakerStateDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

func (d *breakerStateDaoImpl) Load(ctx context.Context, name string) (breaker.Snapshot, error) {
	var row model.BreakerStateRow
	err := d.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if IsNotFound(err) {
		return breaker.Fresh(name), nil
	}
	if err != nil {
		return breaker.Snapshot{}, err
	}
	return toSnapshot(&row), nil
}

func (d *breakerStateDaoImpl) CompareAndSwap(ctx context.Context, prev, next breaker.Snapshot) (bool, error) {
	row := fromSnapshot(next)
	db := d.db.WithContext(ctx)
	if prev.Version == 0 {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		return res.RowsAffected == 1, res.Error
	}
	res := db.Model(&model.BreakerStateRow{}).
		Where("name = ? AND version = ?", prev.Name, prev.Version).
		Updates(map[string]any{
			"state":                 row.State,
			"consecutive_failures":  row.ConsecutiveFailures,
			"consecutive_successes": row.ConsecutiveSuccesses,
			"total_requests":        row.TotalRequests,
			"last_failure_at":       row.LastFailureAt,
			"opened_at":             row.OpenedAt,
			"next_attempt_at":       row.NextAttemptAt,
			"trials_in_flight":      row.TrialsInFlight,
			"version":               row.Version,
			"updated_at":            time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func fromSnapshot(s breaker.Snapshot) *model.BreakerStateRow {
	return &model.BreakerStateRow{
		Name:                 s.Name,
		State:                string(s.State),
		ConsecutiveFailures:  s.ConsecutiveFailures,
		ConsecutiveSuccesses: s.ConsecutiveSuccesses,
		TotalRequests:        s.TotalRequests,
		LastFailureAt:        timePtr(s.LastFailureAt),
		OpenedAt:             timePtr(s.OpenedAt),
		NextAttemptAt:        timePtr(s.NextAttemptAt),
		TrialsInFlight:       s.TrialsInFlight,
		Version:              s.Version,
	}
}

func toSnapshot(r *model.BreakerStateRow) breaker.Snapshot {
	return breaker.Snapshot{
		Name:                 r.Name,
		State:                breaker.State(r.State),
		ConsecutiveFailures:  r.ConsecutiveFailures,
		ConsecutiveSuccesses: r.ConsecutiveSuccesses,
		TotalRequests:        r.TotalRequests,
		LastFailureAt:        timeVal(r.LastFailureAt),
		OpenedAt:             timeVal(r.OpenedAt),
		NextAttemptAt:        timeVal(r.NextAttemptAt),
		TrialsInFlight:       r.TrialsInFlight,
		Version:              r.Version,
	}
}
