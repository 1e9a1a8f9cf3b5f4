package dao

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

type TargetDao interface {
	core.Component
	Get(ctx context.Context, id string) (*model.Target, error)
	MarkContacted(ctx context.Context, id string, at time.Time) error
}

type targetDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`
	db *gorm.DB
}

func NewTargetDao() TargetDao {
	return &targetDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_TARGET, consts.COMPONENT_LOGGING)}
}

func (d *targetDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

func (d *targetDaoImpl) Get(ctx context.Context, id string) (*model.Target, error) {
	var t model.Target
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *targetDaoImpl) MarkContacted(ctx context.Context, id string, at time.Time) error {
	res := d.db.WithContext(ctx).Model(&model.Target{}).Where("id = ?", id).Update("last_contacted", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
