package registry

import (
	"context"
	"sync"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

var (
	runtimeDepExtMap = map[string][]string{}
	runtimeDepExtMu  sync.Mutex
)

// ExtendRuntimeDependencies declares that component target also depends on deps at start/stop
// time. It does not change builder order (use RegisterWithDeps for that) and must be called
// before BuildAndRegisterAll, usually from init().
func ExtendRuntimeDependencies(target string, deps ...string) {
	if target == "" || len(deps) == 0 {
		return
	}
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	runtimeDepExtMap[target] = append(runtimeDepExtMap[target], deps...)
}

// applyRuntimeDepExtensions patches the declared edges into registered components once.
func applyRuntimeDepExtensions(c *core.Container) {
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	ctx := context.Background()
	for target, extra := range runtimeDepExtMap {
		comp, err := c.Resolve(target)
		if err != nil {
			logging.Warnf(ctx, "registry: runtime dep extension target %s not registered (skipped)", target)
			continue
		}
		extender, ok := comp.(interface{ AddDependencies(...string) })
		if !ok {
			logging.Warnf(ctx, "registry: component %s does not support AddDependencies", target)
			continue
		}
		extender.AddDependencies(extra...)
	}
	runtimeDepExtMap = map[string][]string{}
}
