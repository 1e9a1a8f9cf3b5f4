package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

var tracer = otel.Tracer("github.com/grand-thief-cash/chaos/outreach/internal/service")

func startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// loadHeldTask loads a task and verifies runnerID holds its lease.
func loadHeldTask(ctx context.Context, tasks dao.TaskDao, runnerID string, taskID int64, leaseToken string) (*model.Task, error) {
	t, err := tasks.Get(ctx, taskID)
	if dao.IsNotFound(err) {
		return nil, errs.New(errs.NotFound, "task %d not found", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	if t.Status.Terminal() {
		return nil, errs.New(errs.LeaseConflict, "task %d already %s", taskID, t.Status)
	}
	if !t.HeldBy(runnerID, leaseToken) {
		return nil, errs.New(errs.LeaseConflict, "task %d is not leased to %s", taskID, runnerID)
	}
	return t, nil
}

// leaseErr converts a lost guarded update into LeaseConflict.
func leaseErr(err error, taskID int64) error {
	if errors.Is(err, dao.ErrLeaseLost) {
		return errs.Wrap(errs.LeaseConflict, err, fmt.Sprintf("task %d", taskID))
	}
	return fmt.Errorf("update task %d: %w", taskID, err)
}
