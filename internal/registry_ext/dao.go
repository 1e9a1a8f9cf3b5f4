package registry_ext

import (
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/config"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/registry"

	bizConfig "github.com/grand-thief-cash/chaos/outreach/internal/config"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/service"
)

// biz returns the loaded biz_config with defaults filled. Builders run after config load.
func biz() *bizConfig.BizConfig {
	b := bizConfig.GetBizConfig()
	b.ApplyDefaults()
	return b
}

func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		st := biz().Storage
		return true, dao.NewDB(st.Driver, st.DataSource), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b := biz()
		return true, dao.NewTaskDao(dao.TaskDaoOptions{
			CASRetries:     b.Claim.CASRetries,
			CandidateBatch: b.Claim.CandidateBatch,
			SkipLocked:     b.Claim.UseSkipLocked(),
		}), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewCampaignDao(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewRunnerDao(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewProgressDao(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, dao.NewTargetDao(), nil
	})
	// 只有 database 后端需要这两张表
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return biz().RateLimit.Backend == service.BackendDatabase, dao.NewRateEventDao(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return biz().Breaker.Backend == service.BackendDatabase, dao.NewBreakerStateDao(), nil
	})
}
