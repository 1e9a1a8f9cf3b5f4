package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/autowire"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/config"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/hooks"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/registry"
)

type App struct {
	container        *core.Container
	lifecycleManager *core.LifecycleManager
	configManager    *config.ConfigManager

	bootOnce sync.Once
	bootErr  error

	shutdownTimeout time.Duration
}

type Option func(*App)

// WithBizConfig sets the pointer that receives the biz_config section.
func WithBizConfig(biz any) Option {
	return func(a *App) { a.configManager.SetBizConfig(biz) }
}

// WithEnvFile loads a dotenv file before OUTREACH_* overrides are applied.
func WithEnvFile(path string) Option {
	return func(a *App) {
		if path != "" {
			a.configManager.SetEnvFile(path)
		}
	}
}

func NewApp(env string, configPath string, opts ...Option) *App {
	abs := configPath
	if p, err := filepath.Abs(configPath); err == nil {
		abs = p
	}
	// boot logger until the logging component replaces it
	if boot, err := zap.NewDevelopment(); err == nil {
		zap.ReplaceGlobals(boot)
	}
	container := core.NewContainer()
	app := &App{
		configManager:    config.NewConfigManager(env, abs),
		container:        container,
		lifecycleManager: core.NewLifecycleManagerWithManager(container, hooks.GetGlobalHookManager()),
		shutdownTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

func (app *App) SetShutdownTimeout(d time.Duration) { app.shutdownTimeout = d }

// Boot loads config, builds every enabled component and autowires tagged fields. It runs once.
func (app *App) Boot() error {
	app.bootOnce.Do(func() {
		if err := app.configManager.LoadConfig(); err != nil {
			app.bootErr = fmt.Errorf("load config failed: %w", err)
			return
		}
		cfg := app.configManager.GetConfig()
		app.container.SetConfig("app", cfg)
		if err := registry.BuildAndRegisterAll(cfg, app.container); err != nil {
			app.bootErr = fmt.Errorf("register components failed: %w", err)
			return
		}
		if err := autowire.InjectAll(app.container); err != nil {
			app.bootErr = fmt.Errorf("autowire failed: %w", err)
		}
	})
	return app.bootErr
}

func (app *App) Container() *core.Container { return app.container }

func (app *App) GetComponent(name string) (core.Component, error) {
	return app.container.Resolve(name)
}

func (app *App) GetConfig() *config.AppConfig {
	return app.configManager.GetConfig()
}

func (app *App) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return app.lifecycleManager.AddHook(name, phase, fn, priority)
}

// Run 根据平台与环境变量选择基础或增强（双信号 + 超时强退）模式。
//
//	OUTREACH_DISABLE_ENHANCED=1   基础模式
//	OUTREACH_FORCE_ENHANCED=1     增强模式
//	OUTREACH_DISABLE_FORCE_EXIT=1 增强模式下禁用强制退出
//	OUTREACH_FORCE_EXIT_CODE=<n>  强制退出码（默认 1）
func (app *App) Run() error {
	if app.shouldUseEnhanced() {
		return app.runEnhanced()
	}
	return app.runBasic()
}

func (app *App) runBasic() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.RunWithContext(ctx)
}

func (app *App) runEnhanced() error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runtime.GOOS == "windows" {
		core.InstallWindowsCtrlHandler(cancel, app.shutdownTimeout)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.RunWithContext(ctx) }()

	for {
		select {
		case sig := <-sigCh:
			zap.L().Info("signal received, shutting down", zap.Stringer("signal", sig), zap.Duration("timeout", app.shutdownTimeout))
			timer := time.AfterFunc(app.shutdownTimeout, func() { app.forceExit("graceful-timeout") })
			defer timer.Stop()
			go func() {
				if _, ok := <-sigCh; ok {
					app.forceExit("second-signal")
				}
			}()
			cancel()
			return <-errCh
		case err := <-errCh:
			return err
		}
	}
}

func (app *App) forceExit(reason string) {
	if _, disable := os.LookupEnv(consts.ENV_PREFIX + "DISABLE_FORCE_EXIT"); disable {
		zap.L().Warn("force exit suppressed", zap.String("reason", reason))
		return
	}
	code := 1
	if v := os.Getenv(consts.ENV_PREFIX + "FORCE_EXIT_CODE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			code = n
		}
	}
	zap.L().Error("forcing process exit", zap.Int("code", code), zap.String("reason", reason))
	_ = zap.L().Sync()
	os.Exit(code)
}

func (app *App) shouldUseEnhanced() bool {
	if _, off := os.LookupEnv(consts.ENV_PREFIX + "DISABLE_ENHANCED"); off {
		return false
	}
	if _, on := os.LookupEnv(consts.ENV_PREFIX + "FORCE_ENHANCED"); on {
		return true
	}
	return runtime.GOOS == "windows"
}

// RunWithContext starts all components, blocks until ctx is done, then stops them.
func (app *App) RunWithContext(ctx context.Context) error {
	if err := app.Boot(); err != nil {
		return err
	}
	if err := app.lifecycleManager.StartAll(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	app.lifecycleManager.StopAll(context.Background())
	return nil
}

func (app *App) Shutdown(ctx context.Context) {
	app.lifecycleManager.StopAll(ctx)
}
