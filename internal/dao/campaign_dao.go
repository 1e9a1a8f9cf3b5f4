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

type CampaignDao interface {
	core.Component
	Create(ctx context.Context, c *model.Campaign) error
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, status string, limit int) ([]*model.Campaign, error)
	SetStatus(ctx context.Context, id int64, status bizConsts.CampaignStatus, now time.Time) error
	// ReconcileCompletion moves active to completed when no task is queued or deferred,
	// and completed back to active when one is. It reports the status it leaves behind.
	ReconcileCompletion(ctx context.Context, id int64, now time.Time) (bizConsts.CampaignStatus, bool, error)
}

type campaignDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`
	db *gorm.DB
}

func NewCampaignDao() CampaignDao {
	return &campaignDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_CAMPAIGN, consts.COMPONENT_LOGGING)}
}

func (d *campaignDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

func (d *campaignDaoImpl) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = bizConsts.CampaignDraft
	}
	return d.db.WithContext(ctx).Create(c).Error
}

func (d *campaignDaoImpl) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	var c model.Campaign
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (d *campaignDaoImpl) List(ctx context.Context, status string, limit int) ([]*model.Campaign, error) {
	q := d.db.WithContext(ctx).Model(&model.Campaign{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*model.Campaign
	if err := q.Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (d *campaignDaoImpl) SetStatus(ctx context.Context, id int64, status bizConsts.CampaignStatus, now time.Time) error {
	updates := map[string]any{"status": status, "updated_at": now}
	if status != bizConsts.CampaignCompleted {
		updates["completed_at"] = nil
	} else {
		updates["completed_at"] = now
	}
	res := d.db.WithContext(ctx).Model(&model.Campaign{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (d *campaignDaoImpl) ReconcileCompletion(ctx context.Context, id int64, now time.Time) (bizConsts.CampaignStatus, bool, error) {
	var (
		status  bizConsts.CampaignStatus
		changed bool
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Campaign
		if err := forUpdate(tx, d.DB.Dialect()).Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		status = c.Status
		if c.Status != bizConsts.CampaignActive && c.Status != bizConsts.CampaignCompleted {
			return nil
		}
		open, err := countOpen(tx, id)
		if err != nil {
			return err
		}
		var updates map[string]any
		switch {
		case c.Status == bizConsts.CampaignActive && open == 0:
			updates = map[string]any{"status": bizConsts.CampaignCompleted, "completed_at": now, "updated_at": now}
			status = bizConsts.CampaignCompleted
		case c.Status == bizConsts.CampaignCompleted && open > 0:
			updates = map[string]any{"status": bizConsts.CampaignActive, "completed_at": nil, "updated_at": now}
			status = bizConsts.CampaignActive
		default:
			return nil
		}
		res := tx.Model(&model.Campaign{}).Where("id = ? AND status = ?", id, c.Status).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return status, changed, nil
}
