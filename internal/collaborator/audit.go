package collaborator

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	natsComp "github.com/grand-thief-cash/chaos/outreach/pkg/application/components/nats"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

const auditQueueSize = 1024

// AuditSink accepts progress entries without blocking the caller.
type AuditSink interface {
	RecordAuditEntry(ctx context.Context, e *model.ProgressEntry)
}

// FanoutAuditSink 异步写入: 数据库 + 结构化日志 + 可选 NATS subject. 队列满时丢弃并告警
type FanoutAuditSink struct {
	*core.BaseComponent
	Progress dao.ProgressDao         `infra:"dep:progress_dao?"`
	Nats     *natsComp.NatsComponent `infra:"dep:nats?"`

	subject string
	queue   chan *model.ProgressEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewFanoutAuditSink(subject string) *FanoutAuditSink {
	return &FanoutAuditSink{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_COLLAB_AUDIT, consts.COMPONENT_LOGGING),
		subject:       subject,
		queue:         make(chan *model.ProgressEntry, auditQueueSize),
		stop:          make(chan struct{}),
	}
}

func (s *FanoutAuditSink) Start(ctx context.Context) error {
	if s.IsActive() {
		return nil
	}
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop drains what is already queued before returning.
func (s *FanoutAuditSink) Stop(ctx context.Context) error {
	if !s.IsActive() {
		return nil
	}
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.BaseComponent.Stop(ctx)
}

func (s *FanoutAuditSink) RecordAuditEntry(ctx context.Context, e *model.ProgressEntry) {
	if e == nil {
		return
	}
	select {
	case s.queue <- e:
	default:
		logging.Warn(ctx, "audit queue full, entry dropped", zap.Int64("task_id", e.TaskID), zap.String("stage", e.Stage))
	}
}

func (s *FanoutAuditSink) loop() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case e := <-s.queue:
			s.write(ctx, e)
		case <-s.stop:
			for {
				select {
				case e := <-s.queue:
					s.write(ctx, e)
				default:
					return
				}
			}
		}
	}
}

func (s *FanoutAuditSink) write(ctx context.Context, e *model.ProgressEntry) {
	logging.Info(ctx, "runner_progress",
		zap.Int64("task_id", e.TaskID),
		zap.String("runner_id", e.RunnerID),
		zap.String("stage", e.Stage),
		zap.String("status", e.Status),
		zap.String("message", e.Message),
		zap.String("evidence_ref", e.EvidenceRef),
	)
	if s.Progress != nil {
		if err := s.Progress.Append(ctx, e); err != nil {
			logging.Errorf(ctx, "append progress task=%d failed: %v", e.TaskID, err)
		}
	}
	if s.Nats != nil && s.subject != "" {
		payload, err := json.Marshal(e)
		if err != nil {
			logging.Errorf(ctx, "marshal progress task=%d failed: %v", e.TaskID, err)
			return
		}
		if err := s.Nats.Publish(s.subject, payload); err != nil {
			logging.Warnf(ctx, "publish progress to %s failed: %v", s.subject, err)
		}
	}
}
