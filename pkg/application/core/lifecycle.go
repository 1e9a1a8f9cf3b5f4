package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/hooks"
)

// LifecycleManager starts components in dependency order and stops them in reverse.
type LifecycleManager struct {
	container   *Container
	hookManager *hooks.Manager
	timeout     time.Duration

	mu      sync.Mutex
	started []Component
	stopped bool
}

func NewLifecycleManager(container *Container) *LifecycleManager {
	return NewLifecycleManagerWithManager(container, hooks.NewManager())
}

// NewLifecycleManagerWithManager shares an existing hook manager, usually the global one.
func NewLifecycleManagerWithManager(container *Container, hm *hooks.Manager) *LifecycleManager {
	if hm == nil {
		hm = hooks.NewManager()
	}
	return &LifecycleManager{container: container, hookManager: hm, timeout: 30 * time.Second}
}

// SetTimeout bounds every single Start and Stop call.
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		lm.timeout = timeout
	}
}

func (lm *LifecycleManager) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return lm.hookManager.Register(&hooks.Hook{Name: name, Phase: phase, Function: fn, Priority: priority})
}

func (lm *LifecycleManager) StartAll(ctx context.Context) error {
	if err := lm.hookManager.Execute(ctx, hooks.BeforeStart); err != nil {
		return fmt.Errorf("before_start hooks failed: %w", err)
	}

	components, err := lm.container.ValidateDependencies()
	if err != nil {
		return fmt.Errorf("resolve start order: %w", err)
	}

	for _, comp := range components {
		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		begin := time.Now()
		err := comp.Start(startCtx)
		cancel()
		if err != nil {
			zap.L().Error("component start failed", zap.String("component", comp.Name()), zap.Error(err))
			lm.rollback(context.Background())
			return fmt.Errorf("failed to start component %s: %w", comp.Name(), err)
		}
		lm.mu.Lock()
		lm.started = append(lm.started, comp)
		lm.mu.Unlock()
		zap.L().Info("component started", zap.String("component", comp.Name()), zap.Duration("took", time.Since(begin)))
	}

	if err := lm.hookManager.Execute(ctx, hooks.AfterStart); err != nil {
		zap.L().Warn("after_start hooks failed", zap.Error(err))
	}
	return nil
}

// StopAll is idempotent. Components that never started are skipped.
func (lm *LifecycleManager) StopAll(ctx context.Context) {
	lm.mu.Lock()
	if lm.stopped {
		lm.mu.Unlock()
		return
	}
	lm.stopped = true
	lm.mu.Unlock()

	if err := lm.hookManager.Execute(ctx, hooks.BeforeShutdown); err != nil {
		zap.L().Warn("before_shutdown hooks failed", zap.Error(err))
	}
	lm.rollback(ctx)
	if err := lm.hookManager.Execute(ctx, hooks.AfterShutdown); err != nil {
		zap.L().Warn("after_shutdown hooks failed", zap.Error(err))
	}
}

// rollback stops started components newest first.
func (lm *LifecycleManager) rollback(ctx context.Context) {
	lm.mu.Lock()
	started := lm.started
	lm.started = nil
	lm.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		comp := started[i]
		if !comp.IsActive() {
			continue
		}
		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		if err := comp.Stop(stopCtx); err != nil {
			zap.L().Error("component stop failed", zap.String("component", comp.Name()), zap.Error(err))
		} else {
			zap.L().Info("component stopped", zap.String("component", comp.Name()))
		}
		cancel()
	}
}
