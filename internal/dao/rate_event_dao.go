package dao

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
	"github.com/grand-thief-cash/chaos/outreach/internal/ratelimit"
)

// RateEventDao persists rate limiter events so every coordinator replica shares one history.
type RateEventDao interface {
	core.Component
	ratelimit.Store
}

type rateEventDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`
	db *gorm.DB
}

func NewRateEventDao() RateEventDao {
	return &rateEventDaoImpl{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_RATE, consts.COMPONENT_LOGGING)}
}

func (d *rateEventDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

func (d *rateEventDaoImpl) Append(ctx context.Context, actor string, ts time.Time) error {
	return d.db.WithContext(ctx).Create(&model.RateEvent{ID: uuid.NewString(), ActorID: actor, OccurredAt: ts}).Error
}

func (d *rateEventDaoImpl) Prune(ctx context.Context, actor string, cutoff time.Time) error {
	return d.db.WithContext(ctx).Where("actor_id = ? AND occurred_at <= ?", actor, cutoff).Delete(&model.RateEvent{}).Error
}

func (d *rateEventDaoImpl) Since(ctx context.Context, actor string, cutoff time.Time) ([]time.Time, error) {
	var out []time.Time
	err := d.db.WithContext(ctx).Model(&model.RateEvent{}).
		Where("actor_id = ? AND occurred_at > ?", actor, cutoff).
		Order("occurred_at ASC").Pluck("occurred_at", &out).Error
	return out, err
}
