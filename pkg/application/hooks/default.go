package hooks

import (
	"context"

	"go.uber.org/zap"
)

var globalHookManager = NewManager()

func init() {
	announce := func(name string, phase Phase, msg string) {
		_ = RegisterHook(name, phase, func(ctx context.Context) error {
			zap.L().Info(msg)
			return nil
		}, 100)
	}
	announce("log_startup", BeforeStart, "application is starting")
	announce("log_started", AfterStart, "application started")
	announce("log_shutdown", BeforeShutdown, "application is shutting down")
	announce("log_shutdown_complete", AfterShutdown, "application shutdown completed")
}

// RegisterHook adds a hook to the process-wide manager used by the App.
func RegisterHook(name string, phase Phase, function HookFunc, priority int) error {
	return globalHookManager.Register(&Hook{Name: name, Phase: phase, Function: function, Priority: priority})
}

func ExecuteHooks(ctx context.Context, phase Phase) error {
	return globalHookManager.Execute(ctx, phase)
}

func GetGlobalHookManager() *Manager { return globalHookManager }
