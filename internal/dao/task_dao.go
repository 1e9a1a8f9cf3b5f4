package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

type TaskDao interface {
	core.Component
	// ClaimNext leases the oldest eligible task to runnerID, or returns nil when none is eligible.
	ClaimNext(ctx context.Context, runnerID string, now time.Time, leaseTimeout time.Duration) (*model.Task, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	Enqueue(ctx context.Context, campaignID int64, targetIDs []string, runAfter time.Time) ([]*model.Task, error)

	// Lease-guarded transitions. They return ErrLeaseLost when t no longer holds the lease.
	MarkSucceeded(ctx context.Context, t *model.Task, now time.Time) error
	MarkDeferred(ctx context.Context, t *model.Task, attempt int, runAfter time.Time, lastErr string, now time.Time) error
	MarkFailed(ctx context.Context, t *model.Task, attempt int, lastErr string, now time.Time) error
	Release(ctx context.Context, t *model.Task, runAfter time.Time, now time.Time) error

	ReclaimExpired(ctx context.Context, now time.Time, leaseTimeout time.Duration, limit int) (int64, error)
	PromoteDeferred(ctx context.Context, now time.Time, limit int) (int64, error)
	RenewLeases(ctx context.Context, runnerID string, now time.Time) (int64, error)

	CountQueued(ctx context.Context, now time.Time) (int64, error)
	CountOpen(ctx context.Context, campaignID int64) (int64, error)
	CountHeldBy(ctx context.Context, runnerID string) (int64, error)
	StatusCounts(ctx context.Context, campaignID int64) (model.StatusCounts, error)
}

type TaskDaoOptions struct {
	CASRetries     int
	CandidateBatch int
	SkipLocked     bool
}

type taskDaoImpl struct {
	*core.BaseComponent
	DB *DB `infra:"dep:outreach_db"`

	opts TaskDaoOptions
	db   *gorm.DB
}

func NewTaskDao(opts TaskDaoOptions) TaskDao {
	if opts.CASRetries <= 0 {
		opts.CASRetries = 5
	}
	if opts.CandidateBatch <= 0 {
		opts.CandidateBatch = 8
	}
	return &taskDaoImpl{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_DAO_TASK, consts.COMPONENT_LOGGING),
		opts:          opts,
	}
}

func (d *taskDaoImpl) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	d.db = d.DB.Gorm()
	return nil
}

// eligible 可认领: queued 且到期, 或 in_progress 且租约过期; 所属 campaign 不在 draft/paused/archived
func (d *taskDaoImpl) eligible(db *gorm.DB, now time.Time, leaseTimeout time.Duration) *gorm.DB {
	claimable := db.Session(&gorm.Session{NewDB: true}).Model(&model.Campaign{}).
		Select("id").Where("status NOT IN ?", bizConsts.NonClaimableCampaignStatuses)
	return db.Model(&model.Task{}).
		Where("((status = ? AND run_after <= ?) OR (status = ? AND locked_at <= ?))",
			bizConsts.TaskQueued, now, bizConsts.TaskInProgress, now.Add(-leaseTimeout)).
		Where("campaign_id IN (?)", claimable)
}

func claimUpdates(runnerID, token string, now time.Time) map[string]any {
	return map[string]any{
		"status":      bizConsts.TaskInProgress,
		"locked_by":   runnerID,
		"locked_at":   now,
		"lease_token": token,
		"version":     gorm.Expr("version + 1"),
		"updated_at":  now,
	}
}

func applyClaim(t *model.Task, runnerID, token string, now time.Time) {
	t.Status = bizConsts.TaskInProgress
	t.LockedBy = &runnerID
	t.LockedAt = &now
	t.LeaseToken = &token
	t.Version++
	t.UpdatedAt = now
}

func (d *taskDaoImpl) ClaimNext(ctx context.Context, runnerID string, now time.Time, leaseTimeout time.Duration) (*model.Task, error) {
	if d.opts.SkipLocked && d.DB.SupportsSkipLocked() {
		return d.claimSkipLocked(ctx, runnerID, now, leaseTimeout)
	}
	return d.claimCAS(ctx, runnerID, now, leaseTimeout)
}

// claimSkipLocked locks one row with FOR UPDATE SKIP LOCKED so concurrent claimers pick different rows.
func (d *taskDaoImpl) claimSkipLocked(ctx context.Context, runnerID string, now time.Time, leaseTimeout time.Duration) (*model.Task, error) {
	var claimed *model.Task
	var err error
	for attempt := 0; attempt < d.opts.CASRetries; attempt++ {
		claimed = nil
		err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var rows []*model.Task
			if err := d.eligible(tx, now, leaseTimeout).
				Order("run_after ASC, id ASC").Limit(1).
				Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
				Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			t := rows[0]
			token := uuid.NewString()
			res := tx.Model(&model.Task{}).Where("id = ? AND version = ?", t.ID, t.Version).
				Updates(claimUpdates(runnerID, token, now))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("claim task %d: locked row changed", t.ID)
			}
			applyClaim(t, runnerID, token, now)
			claimed = t
			return nil
		})
		if err == nil || !IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// claimCAS reads a few candidates and wins one with a version-guarded update that
// re-checks eligibility, so a lease renewed after the read cannot be stolen.
func (d *taskDaoImpl) claimCAS(ctx context.Context, runnerID string, now time.Time, leaseTimeout time.Duration) (*model.Task, error) {
	db := d.db.WithContext(ctx)
	for round := 0; round < d.opts.CASRetries; round++ {
		var candidates []*model.Task
		if err := d.eligible(db, now, leaseTimeout).
			Order("run_after ASC, id ASC").Limit(d.opts.CandidateBatch).
			Find(&candidates).Error; err != nil {
			if IsRetryable(err) {
				continue
			}
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		for _, t := range candidates {
			token := uuid.NewString()
			res := d.eligible(db, now, leaseTimeout).
				Where("id = ? AND version = ?", t.ID, t.Version).
				Updates(claimUpdates(runnerID, token, now))
			if res.Error != nil {
				if IsRetryable(res.Error) {
					continue
				}
				return nil, res.Error
			}
			if res.RowsAffected == 1 {
				applyClaim(t, runnerID, token, now)
				return t, nil
			}
		}
	}
	// every candidate was taken by someone else in every round
	return nil, nil
}

func (d *taskDaoImpl) Get(ctx context.Context, id int64) (*model.Task, error) {
	var t model.Task
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Enqueue inserts queued tasks under the campaign row lock and reopens a completed campaign.
func (d *taskDaoImpl) Enqueue(ctx context.Context, campaignID int64, targetIDs []string, runAfter time.Time) ([]*model.Task, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	tasks := make([]*model.Task, 0, len(targetIDs))
	for _, target := range targetIDs {
		tasks = append(tasks, &model.Task{
			CampaignID: campaignID,
			TargetID:   target,
			Status:     bizConsts.TaskQueued,
			RunAfter:   runAfter,
			Version:    1,
		})
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Campaign
		if err := forUpdate(tx, d.DB.Dialect()).Where("id = ?", campaignID).First(&c).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(tasks, 200).Error; err != nil {
			return err
		}
		if c.Status == bizConsts.CampaignCompleted {
			return tx.Model(&model.Campaign{}).Where("id = ? AND status = ?", c.ID, bizConsts.CampaignCompleted).
				Updates(map[string]any{"status": bizConsts.CampaignActive, "completed_at": nil}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// guarded applies updates only while t still holds its lease.
func (d *taskDaoImpl) guarded(ctx context.Context, t *model.Task, updates map[string]any) error {
	if t.LockedBy == nil {
		return ErrLeaseLost
	}
	q := d.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND status = ? AND locked_by = ? AND version = ?", t.ID, bizConsts.TaskInProgress, *t.LockedBy, t.Version)
	if t.LeaseToken != nil {
		q = q.Where("lease_token = ?", *t.LeaseToken)
	}
	updates["version"] = gorm.Expr("version + 1")
	updates["locked_by"] = nil
	updates["locked_at"] = nil
	updates["lease_token"] = nil
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	t.Version++
	t.LockedBy, t.LockedAt, t.LeaseToken = nil, nil, nil
	return nil
}

func (d *taskDaoImpl) MarkSucceeded(ctx context.Context, t *model.Task, now time.Time) error {
	if err := d.guarded(ctx, t, map[string]any{
		"status":      bizConsts.TaskSucceeded,
		"finished_at": now,
		"updated_at":  now,
	}); err != nil {
		return err
	}
	t.Status, t.FinishedAt = bizConsts.TaskSucceeded, &now
	return nil
}

func (d *taskDaoImpl) MarkDeferred(ctx context.Context, t *model.Task, attempt int, runAfter time.Time, lastErr string, now time.Time) error {
	if err := d.guarded(ctx, t, map[string]any{
		"status":     bizConsts.TaskDeferred,
		"attempt":    attempt,
		"run_after":  runAfter,
		"last_error": lastErr,
		"updated_at": now,
	}); err != nil {
		return err
	}
	t.Status, t.Attempt, t.RunAfter, t.LastError = bizConsts.TaskDeferred, attempt, runAfter, &lastErr
	return nil
}

func (d *taskDaoImpl) MarkFailed(ctx context.Context, t *model.Task, attempt int, lastErr string, now time.Time) error {
	if err := d.guarded(ctx, t, map[string]any{
		"status":      bizConsts.TaskFailed,
		"attempt":     attempt,
		"last_error":  lastErr,
		"finished_at": now,
		"updated_at":  now,
	}); err != nil {
		return err
	}
	t.Status, t.Attempt, t.LastError, t.FinishedAt = bizConsts.TaskFailed, attempt, &lastErr, &now
	return nil
}

// Release gives a task back without counting an attempt.
func (d *taskDaoImpl) Release(ctx context.Context, t *model.Task, runAfter time.Time, now time.Time) error {
	if err := d.guarded(ctx, t, map[string]any{
		"status":     bizConsts.TaskQueued,
		"run_after":  runAfter,
		"updated_at": now,
	}); err != nil {
		return err
	}
	t.Status, t.RunAfter = bizConsts.TaskQueued, runAfter
	return nil
}

// ReclaimExpired resets expired leases to queued; attempt is kept.
func (d *taskDaoImpl) ReclaimExpired(ctx context.Context, now time.Time, leaseTimeout time.Duration, limit int) (int64, error) {
	cutoff := now.Add(-leaseTimeout)
	db := d.db.WithContext(ctx)
	var ids []int64
	if err := db.Model(&model.Task{}).
		Where("status = ? AND locked_at <= ?", bizConsts.TaskInProgress, cutoff).
		Order("locked_at ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Model(&model.Task{}).
		Where("id IN ? AND status = ? AND locked_at <= ?", ids, bizConsts.TaskInProgress, cutoff).
		Updates(map[string]any{
			"status":      bizConsts.TaskQueued,
			"locked_by":   nil,
			"locked_at":   nil,
			"lease_token": nil,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}

func (d *taskDaoImpl) PromoteDeferred(ctx context.Context, now time.Time, limit int) (int64, error) {
	db := d.db.WithContext(ctx)
	var ids []int64
	if err := db.Model(&model.Task{}).
		Where("status = ? AND run_after <= ?", bizConsts.TaskDeferred, now).
		Order("run_after ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Model(&model.Task{}).
		Where("id IN ? AND status = ? AND run_after <= ?", ids, bizConsts.TaskDeferred, now).
		Updates(map[string]any{
			"status":     bizConsts.TaskQueued,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// RenewLeases refreshes locked_at of every task runnerID holds. The version is not bumped,
// so in-flight completions of the same lease still match.
func (d *taskDaoImpl) RenewLeases(ctx context.Context, runnerID string, now time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Model(&model.Task{}).
		Where("status = ? AND locked_by = ?", bizConsts.TaskInProgress, runnerID).
		Updates(map[string]any{"locked_at": now, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (d *taskDaoImpl) CountQueued(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	claimable := d.db.Session(&gorm.Session{NewDB: true}).Model(&model.Campaign{}).
		Select("id").Where("status NOT IN ?", bizConsts.NonClaimableCampaignStatuses)
	err := d.db.WithContext(ctx).Model(&model.Task{}).
		Where("status = ? AND run_after <= ?", bizConsts.TaskQueued, now).
		Where("campaign_id IN (?)", claimable).
		Count(&n).Error
	return n, err
}

func (d *taskDaoImpl) CountOpen(ctx context.Context, campaignID int64) (int64, error) {
	return countOpen(d.db.WithContext(ctx), campaignID)
}

func countOpen(db *gorm.DB, campaignID int64) (int64, error) {
	var n int64
	err := db.Model(&model.Task{}).
		Where("campaign_id = ? AND status IN ?", campaignID, []bizConsts.TaskStatus{bizConsts.TaskQueued, bizConsts.TaskDeferred}).
		Count(&n).Error
	return n, err
}

func (d *taskDaoImpl) CountHeldBy(ctx context.Context, runnerID string) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&model.Task{}).
		Where("status = ? AND locked_by = ?", bizConsts.TaskInProgress, runnerID).Count(&n).Error
	return n, err
}

func (d *taskDaoImpl) StatusCounts(ctx context.Context, campaignID int64) (model.StatusCounts, error) {
	var rows []struct {
		Status string
		N      int64
	}
	if err := d.db.WithContext(ctx).Model(&model.Task{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := model.StatusCounts{}
	for _, s := range bizConsts.AllTaskStatuses {
		out[string(s)] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
