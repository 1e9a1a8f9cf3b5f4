package registry_ext

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/config"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/registry"

	"github.com/grand-thief-cash/chaos/outreach/internal/collaborator"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
	"github.com/grand-thief-cash/chaos/outreach/internal/service"
)

func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, metrics.New(), nil
	})

	// collaborators
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		cc := biz().Collab
		return true, collaborator.NewRenderer(cc.RendererClient, cc.RendererPath), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		cc := biz().Collab
		switch cc.DirectoryBackend {
		case "database":
			return true, collaborator.NewDBDirectory(), nil
		case "http":
			if cc.DirectoryClient == "" {
				return true, nil, fmt.Errorf("collaborators.directory_client required for http directory")
			}
			return true, collaborator.NewHTTPDirectory(cc.DirectoryClient), nil
		}
		return true, nil, fmt.Errorf("unknown collaborators.directory_backend %q", cc.DirectoryBackend)
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, collaborator.NewFanoutAuditSink(biz().Collab.AuditSubject), nil
	})

	// services
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		auth, err := service.NewRunnerAuth(biz().Auth.Runners)
		if err != nil {
			return true, nil, fmt.Errorf("runner auth: %w", err)
		}
		return true, auth, nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b := biz()
		return true, service.NewSafetyEnvelope(b.RateLimit, b.Breaker, nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		rc := biz().RunnerConfig
		return true, service.NewRunnerConfigSource(rc.Path, rc.Watch), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewClaimService(biz().Claim.LeaseTimeout, nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b := biz()
		return true, service.NewHeartbeatService(b.Claim.LeaseTimeout, b.Presence.Redis, nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewCompletionService(biz().Retry, nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewGateService(nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewAdminService(), nil
	})

	// background scanners
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		p := biz().Promoter
		if !p.On() {
			return false, nil, nil
		}
		return true, service.NewDeferredPromoter(p.Interval, p.BatchSize, nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b := biz()
		if !b.Sweeper.On() {
			return false, nil, nil
		}
		return true, service.NewLeaseSweeper(b.Sweeper.Interval, b.Claim.LeaseTimeout, b.Sweeper.BatchSize, nil), nil
	})
}
