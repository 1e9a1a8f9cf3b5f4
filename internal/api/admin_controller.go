package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_server"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

// AdminController exposes read-only aggregates for operators.
type AdminController struct {
	*core.BaseComponent
	Admin AdminReader `infra:"dep:admin_service"`
}

func NewAdminController() *AdminController {
	return &AdminController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_ADMIN)}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_ADMIN)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*AdminController)
		if !ok {
			return fmt.Errorf("admin_ctrl type assertion failed")
		}
		r.Route("/api/v1/admin", ctrl.Mount)
		return nil
	})
}

func (c *AdminController) Mount(r chi.Router) {
	r.Get("/campaigns/{id}/stats", c.campaignStats)
	r.Get("/breakers", c.breakers)
	r.Get("/limits/{actor}", c.limits)
	r.Get("/runners/{id}", c.runner)
}

func (c *AdminController) campaignStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	stats, err := c.Admin.CampaignStats(r.Context(), id)
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, stats)
}

func (c *AdminController) breakers(w http.ResponseWriter, r *http.Request) {
	list, err := c.Admin.Breakers(r.Context())
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"items": list})
}

func (c *AdminController) limits(w http.ResponseWriter, r *http.Request) {
	st, err := c.Admin.Limits(r.Context(), chi.URLParam(r, "actor"))
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, st)
}

func (c *AdminController) runner(w http.ResponseWriter, r *http.Request) {
	lv, err := c.Admin.Runner(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, lv)
}

func (c *AdminController) Start(ctx context.Context) error { return c.BaseComponent.Start(ctx) }

func (c *AdminController) Stop(ctx context.Context) error { return c.BaseComponent.Stop(ctx) }
