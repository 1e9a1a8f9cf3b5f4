package http_server

import (
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

// RouteRegisterFunc mounts routes. The container resolves controller components.
type RouteRegisterFunc func(r chi.Router, c *core.Container) error

var (
	routesMu  sync.Mutex
	registrar []RouteRegisterFunc
)

// RegisterRoutes is called from init() of packages that own routes.
func RegisterRoutes(fn RouteRegisterFunc) {
	if fn == nil {
		return
	}
	routesMu.Lock()
	registrar = append(registrar, fn)
	routesMu.Unlock()
}

func snapshot() []RouteRegisterFunc {
	routesMu.Lock()
	defer routesMu.Unlock()
	out := make([]RouteRegisterFunc, len(registrar))
	copy(out, registrar)
	return out
}
