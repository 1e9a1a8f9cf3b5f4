package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

// memTaskDao mirrors the guarded semantics of the gorm dao in memory.
type memTaskDao struct {
	*core.BaseComponent
	mu        sync.Mutex
	nextID    int64
	tasks     map[int64]*model.Task
	campaigns *memCampaignDao
	calls     atomic.Int64
}

func newMemTaskDao(campaigns *memCampaignDao) *memTaskDao {
	return &memTaskDao{BaseComponent: core.NewBaseComponent("task_dao"), tasks: map[int64]*model.Task{}, campaigns: campaigns}
}

func clone(t *model.Task) *model.Task {
	cp := *t
	return &cp
}

func (d *memTaskDao) add(campaignID int64, target string, runAfter time.Time) *model.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	t := &model.Task{ID: d.nextID, CampaignID: campaignID, TargetID: target, Status: bizConsts.TaskQueued, RunAfter: runAfter, Version: 1}
	d.tasks[t.ID] = t
	return clone(t)
}

func (d *memTaskDao) get(id int64) *model.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clone(d.tasks[id])
}

func (d *memTaskDao) claimable(campaignID int64) bool {
	c, ok := d.campaigns.peek(campaignID)
	if !ok {
		return false
	}
	for _, s := range bizConsts.NonClaimableCampaignStatuses {
		if c.Status == s {
			return false
		}
	}
	return true
}

func (d *memTaskDao) ClaimNext(_ context.Context, runnerID string, now time.Time, leaseTimeout time.Duration) (*model.Task, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	var candidates []*model.Task
	for _, t := range d.tasks {
		due := t.Status == bizConsts.TaskQueued && !t.RunAfter.After(now)
		if (due || t.LeaseExpired(now, leaseTimeout)) && d.claimable(t.CampaignID) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].RunAfter.Equal(candidates[j].RunAfter) {
			return candidates[i].RunAfter.Before(candidates[j].RunAfter)
		}
		return candidates[i].ID < candidates[j].ID
	})
	t := candidates[0]
	token := uuid.NewString()
	t.Status, t.LockedBy, t.LockedAt, t.LeaseToken = bizConsts.TaskInProgress, &runnerID, &now, &token
	t.Version++
	return clone(t), nil
}

func (d *memTaskDao) Get(_ context.Context, id int64) (*model.Task, error) {
	d.calls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return clone(t), nil
}

func (d *memTaskDao) Enqueue(_ context.Context, campaignID int64, targetIDs []string, runAfter time.Time) ([]*model.Task, error) {
	var out []*model.Task
	for _, target := range targetIDs {
		out = append(out, d.add(campaignID, target, runAfter))
	}
	return out, nil
}

func (d *memTaskDao) guarded(t *model.Task, apply func(stored *model.Task)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stored, ok := d.tasks[t.ID]
	if !ok || t.LockedBy == nil || stored.Status != bizConsts.TaskInProgress || stored.LockedBy == nil ||
		*stored.LockedBy != *t.LockedBy || stored.Version != t.Version {
		return dao.ErrLeaseLost
	}
	if t.LeaseToken != nil && (stored.LeaseToken == nil || *stored.LeaseToken != *t.LeaseToken) {
		return dao.ErrLeaseLost
	}
	apply(stored)
	stored.LockedBy, stored.LockedAt, stored.LeaseToken = nil, nil, nil
	stored.Version++
	*t = *clone(stored)
	return nil
}

func (d *memTaskDao) MarkSucceeded(_ context.Context, t *model.Task, now time.Time) error {
	return d.guarded(t, func(s *model.Task) { s.Status, s.FinishedAt = bizConsts.TaskSucceeded, &now })
}

func (d *memTaskDao) MarkDeferred(_ context.Context, t *model.Task, attempt int, runAfter time.Time, lastErr string, _ time.Time) error {
	return d.guarded(t, func(s *model.Task) {
		s.Status, s.Attempt, s.RunAfter, s.LastError = bizConsts.TaskDeferred, attempt, runAfter, &lastErr
	})
}

func (d *memTaskDao) MarkFailed(_ context.Context, t *model.Task, attempt int, lastErr string, now time.Time) error {
	return d.guarded(t, func(s *model.Task) {
		s.Status, s.Attempt, s.LastError, s.FinishedAt = bizConsts.TaskFailed, attempt, &lastErr, &now
	})
}

func (d *memTaskDao) Release(_ context.Context, t *model.Task, runAfter time.Time, _ time.Time) error {
	return d.guarded(t, func(s *model.Task) { s.Status, s.RunAfter = bizConsts.TaskQueued, runAfter })
}

func (d *memTaskDao) ReclaimExpired(_ context.Context, now time.Time, leaseTimeout time.Duration, limit int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, t := range d.tasks {
		if int(n) >= limit {
			break
		}
		if t.LeaseExpired(now, leaseTimeout) {
			t.Status, t.LockedBy, t.LockedAt, t.LeaseToken = bizConsts.TaskQueued, nil, nil, nil
			t.Version++
			n++
		}
	}
	return n, nil
}

func (d *memTaskDao) PromoteDeferred(_ context.Context, now time.Time, limit int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, t := range d.tasks {
		if int(n) >= limit {
			break
		}
		if t.Status == bizConsts.TaskDeferred && !t.RunAfter.After(now) {
			t.Status = bizConsts.TaskQueued
			t.Version++
			n++
		}
	}
	return n, nil
}

func (d *memTaskDao) RenewLeases(_ context.Context, runnerID string, now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, t := range d.tasks {
		if t.Status == bizConsts.TaskInProgress && t.LockedBy != nil && *t.LockedBy == runnerID {
			at := now
			t.LockedAt = &at
			n++
		}
	}
	return n, nil
}

func (d *memTaskDao) CountQueued(_ context.Context, now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, t := range d.tasks {
		if t.Status == bizConsts.TaskQueued && !t.RunAfter.After(now) && d.claimable(t.CampaignID) {
			n++
		}
	}
	return n, nil
}

func (d *memTaskDao) countOpen(campaignID int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, t := range d.tasks {
		if t.CampaignID == campaignID && (t.Status == bizConsts.TaskQueued || t.Status == bizConsts.TaskDeferred) {
			n++
		}
	}
	return n
}

func (d *memTaskDao) CountOpen(_ context.Context, campaignID int64) (int64, error) {
	return d.countOpen(campaignID), nil
}

func (d *memTaskDao) CountHeldBy(_ context.Context, runnerID string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, t := range d.tasks {
		if t.Status == bizConsts.TaskInProgress && t.LockedBy != nil && *t.LockedBy == runnerID {
			n++
		}
	}
	return n, nil
}

func (d *memTaskDao) StatusCounts(_ context.Context, campaignID int64) (model.StatusCounts, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := model.StatusCounts{}
	for _, s := range bizConsts.AllTaskStatuses {
		out[string(s)] = 0
	}
	for _, t := range d.tasks {
		if t.CampaignID == campaignID {
			out[string(t.Status)]++
		}
	}
	return out, nil
}

type memCampaignDao struct {
	*core.BaseComponent
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
	tasks     *memTaskDao
	checks    atomic.Int64

	// reconcileMu plays the campaign row lock; afterCount runs between the count and the write.
	reconcileMu sync.Mutex
	afterCount  func(open int64)
}

func newMemCampaignDao() *memCampaignDao {
	return &memCampaignDao{BaseComponent: core.NewBaseComponent("campaign_dao"), campaigns: map[int64]*model.Campaign{}}
}

func (d *memCampaignDao) peek(id int64) (model.Campaign, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.campaigns[id]
	if !ok {
		return model.Campaign{}, false
	}
	return *c, true
}

func (d *memCampaignDao) Create(_ context.Context, c *model.Campaign) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.ID == 0 {
		c.ID = int64(len(d.campaigns) + 1)
	}
	cp := *c
	d.campaigns[c.ID] = &cp
	return nil
}

func (d *memCampaignDao) Get(_ context.Context, id int64) (*model.Campaign, error) {
	c, ok := d.peek(id)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (d *memCampaignDao) List(context.Context, string, int) ([]*model.Campaign, error) { return nil, nil }

func (d *memCampaignDao) SetStatus(_ context.Context, id int64, status bizConsts.CampaignStatus, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.campaigns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (d *memCampaignDao) ReconcileCompletion(_ context.Context, id int64, now time.Time) (bizConsts.CampaignStatus, bool, error) {
	d.checks.Add(1)
	d.reconcileMu.Lock()
	defer d.reconcileMu.Unlock()
	open := d.tasks.countOpen(id)
	if d.afterCount != nil {
		d.afterCount(open)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.campaigns[id]
	if !ok {
		return "", false, gorm.ErrRecordNotFound
	}
	switch {
	case c.Status == bizConsts.CampaignActive && open == 0:
		c.Status, c.CompletedAt = bizConsts.CampaignCompleted, &now
		return c.Status, true, nil
	case c.Status == bizConsts.CampaignCompleted && open > 0:
		c.Status, c.CompletedAt = bizConsts.CampaignActive, nil
		return c.Status, true, nil
	}
	return c.Status, false, nil
}

type memRunnerDao struct {
	*core.BaseComponent
	mu      sync.Mutex
	runners map[string]*model.Runner
}

func newMemRunnerDao() *memRunnerDao {
	return &memRunnerDao{BaseComponent: core.NewBaseComponent("runner_dao"), runners: map[string]*model.Runner{}}
}

func (d *memRunnerDao) Upsert(_ context.Context, r *model.Runner) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *r
	d.runners[r.ID] = &cp
	return nil
}

func (d *memRunnerDao) Get(_ context.Context, id string) (*model.Runner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.runners[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (d *memRunnerDao) List(context.Context) ([]*model.Runner, error) { return nil, nil }

func (d *memRunnerDao) MarkStale(_ context.Context, cutoff time.Time, _ time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, r := range d.runners {
		if r.LastHeartbeatAt.Before(cutoff) && r.Status != bizConsts.RunnerOffline {
			r.Status = bizConsts.RunnerOffline
			n++
		}
	}
	return n, nil
}

type stubDirectory struct {
	mu         sync.Mutex
	profileErr error
	markErr    error
	contacted  map[string]time.Time
}

func (s *stubDirectory) Profile(_ context.Context, id string) (*model.Target, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &model.Target{ID: id, DisplayName: "Target " + id}, nil
}

func (s *stubDirectory) MarkTargetContacted(_ context.Context, id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	if s.contacted == nil {
		s.contacted = map[string]time.Time{}
	}
	s.contacted[id] = when
	return nil
}

type stubRenderer struct{}

func (stubRenderer) RenderMessage(_ context.Context, template, targetID string) (string, error) {
	return template + ":" + targetID, nil
}
