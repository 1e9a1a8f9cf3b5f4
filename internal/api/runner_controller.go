package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_server"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/collaborator"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
	"github.com/grand-thief-cash/chaos/outreach/internal/service"
)

type runnerKey struct{}

func runnerFrom(ctx context.Context) string {
	id, _ := ctx.Value(runnerKey{}).(string)
	return id
}

// RunnerController serves the runner-facing protocol. Every route requires a bearer token;
// the runner identity comes from the token, never from the body.
type RunnerController struct {
	*core.BaseComponent
	Auth       Authenticator          `infra:"dep:runner_auth"`
	Claims     Claimer                `infra:"dep:claim_service"`
	Heartbeats Heartbeater            `infra:"dep:heartbeat_service"`
	Completes  Completer              `infra:"dep:completion_service"`
	Gate       Gate                   `infra:"dep:gate_service"`
	Audit      collaborator.AuditSink `infra:"dep:audit_sink?"`

	clock clockwork.Clock
}

func NewRunnerController(clock clockwork.Clock) *RunnerController {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RunnerController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_RUNNER), clock: clock}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_RUNNER)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*RunnerController)
		if !ok {
			return fmt.Errorf("runner_ctrl type assertion failed")
		}
		r.Route("/api/v1/runner", ctrl.Mount)
		return nil
	})
}

// Mount registers the runner routes on r.
func (c *RunnerController) Mount(r chi.Router) {
	r.Use(c.authenticate)
	r.Post("/claim", c.claim)
	r.Post("/heartbeat", c.heartbeat)
	r.Post("/complete", c.complete)
	r.Post("/progress", c.progress)
	r.Post("/permit", c.permit)
	r.Post("/release", c.release)
}

// authenticate rejects before any handler runs, so a bad credential never reaches storage.
func (c *RunnerController) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeSvcErr(w, r, errs.ErrUnauthorized)
			return
		}
		runnerID, err := c.Auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			logging.Warn(r.Context(), "runner auth rejected", zap.String("remote", r.RemoteAddr))
			writeSvcErr(w, r, errs.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), runnerKey{}, runnerID)))
	})
}

func (c *RunnerController) claim(w http.ResponseWriter, r *http.Request) {
	task, err := c.Claims.Claim(r.Context(), runnerFrom(r.Context()))
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"task": task})
}

func (c *RunnerController) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req service.HeartbeatRequest
	if err := decode(r, &req); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	res, err := c.Heartbeats.Heartbeat(r.Context(), runnerFrom(r.Context()), req)
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (c *RunnerController) complete(w http.ResponseWriter, r *http.Request) {
	var req service.CompleteRequest
	if err := decode(r, &req); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	if err := requireTask(req.TaskID); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	res, err := c.Completes.Complete(r.Context(), runnerFrom(r.Context()), req)
	if err != nil {
		writeSvcErr(w, r, err)
		return
	}
	// an exhausted retry budget is still a successful report
	writeJSON(w, map[string]any{
		"ok":       true,
		"taskId":   res.TaskID,
		"status":   res.Status,
		"attempt":  res.Attempt,
		"runAfter": res.RunAfter,
		"terminal": res.Terminal,
	})
}

type progressRequest struct {
	TaskID      int64  `json:"taskId"`
	Stage       string `json:"stage"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	EvidenceRef string `json:"evidenceRef,omitempty"`
}

func (c *RunnerController) progress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decode(r, &req); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	if err := requireTask(req.TaskID); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	if req.Stage == "" || req.Status == "" {
		writeSvcErr(w, r, errs.New(errs.Invalid, "stage and status required"))
		return
	}
	if c.Audit != nil {
		c.Audit.RecordAuditEntry(r.Context(), &model.ProgressEntry{
			TaskID:      req.TaskID,
			RunnerID:    runnerFrom(r.Context()),
			Stage:       req.Stage,
			Status:      req.Status,
			Message:     req.Message,
			EvidenceRef: req.EvidenceRef,
			CreatedAt:   c.clock.Now().UTC(),
		})
	}
	writeStatus(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type leaseRequest struct {
	TaskID       int64  `json:"taskId"`
	LeaseToken   string `json:"leaseToken"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

func (c *RunnerController) permit(w http.ResponseWriter, r *http.Request) {
	var req leaseRequest
	if err := decode(r, &req); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	if err := requireTask(req.TaskID); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	if err := c.Gate.Permit(r.Context(), runnerFrom(r.Context()), req.TaskID, req.LeaseToken); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (c *RunnerController) release(w http.ResponseWriter, r *http.Request) {
	var req leaseRequest
	if err := decode(r, &req); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	if err := requireTask(req.TaskID); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	delay := time.Duration(req.RetryAfterMs) * time.Millisecond
	if err := c.Gate.Release(r.Context(), runnerFrom(r.Context()), req.TaskID, req.LeaseToken, delay); err != nil {
		writeSvcErr(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (c *RunnerController) Start(ctx context.Context) error { return c.BaseComponent.Start(ctx) }

func (c *RunnerController) Stop(ctx context.Context) error { return c.BaseComponent.Stop(ctx) }
