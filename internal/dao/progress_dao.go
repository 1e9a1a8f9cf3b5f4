package dao

import (
	"context"

	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

type ProgressDao interface {
	core.Component
	Append(ctx context.Context, e *model.ProgressEntry) error
	ListByTask(ctx context.Context, taskID int64, limit int) ([]*model.ProgressEntry, error)
}

type progressDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`
	db *gorm.DB
}

func NewProgressDao() ProgressDao {
	return &progressDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_PROGRESS, consts.COMPONENT_LOGGING)}
}

func (d *progressDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

func (d *progressDaoImpl) Append(ctx context.Context, e *model.ProgressEntry) error {
	return d.db.WithContext(ctx).Create(e).Error
}

func (d *progressDaoImpl) ListByTask(ctx context.Context, taskID int64, limit int) ([]*model.ProgressEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*model.ProgressEntry
	err := d.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id ASC").Limit(limit).Find(&out).Error
	return out, err
}
