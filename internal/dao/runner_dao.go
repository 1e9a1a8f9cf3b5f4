package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

type RunnerDao interface {
	core.Component
	Upsert(ctx context.Context, r *model.Runner) error
	Get(ctx context.Context, id string) (*model.Runner, error)
	List(ctx context.Context) ([]*model.Runner, error)
	// MarkStale flips runners silent since before cutoff to offline.
	MarkStale(ctx context.Context, cutoff time.Time, now time.Time) (int64, error)
}

type runnerDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`
	db *gorm.DB
}

func NewRunnerDao() RunnerDao {
	return &runnerDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_RUNNER, consts.COMPONENT_LOGGING)}
}

func (d *runnerDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

func (d *runnerDaoImpl) Upsert(ctx context.Context, r *model.Runner) error {
	if r.MetricsJSON == "" {
		r.MetricsJSON = bizConsts.DEFAULT_JSON_STR
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "metrics", "last_heartbeat_at", "config_version", "updated_at"}),
	}).Create(r).Error
}

func (d *runnerDaoImpl) Get(ctx context.Context, id string) (*model.Runner, error) {
	var r model.Runner
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *runnerDaoImpl) List(ctx context.Context) ([]*model.Runner, error) {
	var out []*model.Runner
	if err := d.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (d *runnerDaoImpl) MarkStale(ctx context.Context, cutoff time.Time, now time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Model(&model.Runner{}).
		Where("last_heartbeat_at < ? AND status <> ?", cutoff, bizConsts.RunnerOffline).
		Updates(map[string]any{"status": bizConsts.RunnerOffline, "updated_at": now})
	return res.RowsAffected, res.Error
}
