package registry_ext

import (
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/config"
	appconsts "github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/registry"

	"github.com/grand-thief-cash/chaos/outreach/internal/api"
	"github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

func init() {
	// http_server 必须在 controller 之后启动
	registry.ExtendRuntimeDependencies(appconsts.COMPONENT_HTTP_SERVER, consts.COMP_CTRL_RUNNER, consts.COMP_CTRL_ADMIN)

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewRunnerController(nil), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, api.NewAdminController(), nil
	})
}
