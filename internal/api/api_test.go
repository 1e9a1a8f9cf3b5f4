package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grand-thief-cash/chaos/outreach/internal/breaker"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
	"github.com/grand-thief-cash/chaos/outreach/internal/service"
)

type fakeAuth map[string]string

func (f fakeAuth) Authenticate(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errs.ErrUnauthorized
}

// fakeServices implements every runner-facing service and counts calls.
type fakeServices struct {
	calls atomic.Int64

	mu         sync.Mutex
	lastRunner string
	claimed    *model.ClaimedTask
	err        error
	complete   *service.CompleteResult
	released   time.Duration
	heartbeat  service.HeartbeatRequest
}

func (f *fakeServices) set(fn func(f *fakeServices)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type seenArgs struct {
	lastRunner string
	released   time.Duration
	heartbeat  service.HeartbeatRequest
}

func (f *fakeServices) snapshot() seenArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return seenArgs{lastRunner: f.lastRunner, released: f.released, heartbeat: f.heartbeat}
}

// seen records the call and must be called with mu held.
func (f *fakeServices) seen(runnerID string) {
	f.calls.Add(1)
	f.lastRunner = runnerID
}

func (f *fakeServices) Claim(_ context.Context, runnerID string) (*model.ClaimedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(runnerID)
	return f.claimed, f.err
}

func (f *fakeServices) Heartbeat(_ context.Context, runnerID string, req service.HeartbeatRequest) (*service.HeartbeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(runnerID)
	f.heartbeat = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.HeartbeatResult{PendingTaskCount: 4}, nil
}

func (f *fakeServices) Complete(_ context.Context, runnerID string, _ service.CompleteRequest) (*service.CompleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(runnerID)
	if f.err != nil {
		return nil, f.err
	}
	return f.complete, nil
}

func (f *fakeServices) Permit(_ context.Context, runnerID string, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(runnerID)
	return f.err
}

func (f *fakeServices) Release(_ context.Context, runnerID string, _ int64, _ string, retryAfter time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen(runnerID)
	f.released = retryAfter
	return f.err
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*model.ProgressEntry
}

func (f *fakeAudit) RecordAuditEntry(_ context.Context, e *model.ProgressEntry) {
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()
}

func (f *fakeAudit) list() []*model.ProgressEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.ProgressEntry(nil), f.entries...)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRunnerServer(t *testing.T) (*httptest.Server, *fakeServices, *fakeAudit) {
	t.Helper()
	svc := &fakeServices{}
	audit := &fakeAudit{}
	ctrl := NewRunnerController(clockwork.NewFakeClockAt(t0))
	ctrl.Auth = fakeAuth{"tok-1": "runner-1"}
	ctrl.Claims, ctrl.Heartbeats, ctrl.Completes, ctrl.Gate = svc, svc, svc, svc
	ctrl.Audit = audit
	r := chi.NewRouter()
	r.Route("/api/v1/runner", ctrl.Mount)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, audit
}

func post(t *testing.T, srv *httptest.Server, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRunnerRoutes_UnauthorizedNeverReachesServices(t *testing.T) {
	srv, svc, audit := newRunnerServer(t)
	routes := []string{"/claim", "/heartbeat", "/complete", "/progress", "/permit", "/release"}
	for _, route := range routes {
		for _, auth := range []string{"", "tok-1", "Basic tok-1", "Bearer ", "Bearer nope"} {
			resp, body := post(t, srv, "/api/v1/runner"+route, auth, `{"taskId":1}`)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %q", route, auth)
			assert.Equal(t, "unauthorized", body["code"])
		}
	}
	assert.Zero(t, svc.calls.Load())
	assert.Empty(t, audit.list())
}

func TestRunnerRoutes_Claim(t *testing.T) {
	srv, svc, _ := newRunnerServer(t)

	resp, body := post(t, srv, "/api/v1/runner/claim", "Bearer tok-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "task")
	assert.Nil(t, body["task"])
	assert.Equal(t, "runner-1", svc.snapshot().lastRunner)

	svc.set(func(f *fakeServices) { f.claimed = &model.ClaimedTask{ID: 9, CampaignID: 1, TargetID: "t-9", LeaseToken: "lt"} })
	_, body = post(t, srv, "/api/v1/runner/claim", "Bearer tok-1", "")
	task := body["task"].(map[string]any)
	assert.EqualValues(t, 9, task["id"])
	assert.Equal(t, "lt", task["leaseToken"])

	svc.set(func(f *fakeServices) { f.err = errs.Wrap(errs.Internal, plainErr("db gone"), "claim") })
	resp, body = post(t, srv, "/api/v1/runner/claim", "Bearer tok-1", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal", body["error"], "internal causes are not echoed")
}

func TestRunnerRoutes_CompleteMapping(t *testing.T) {
	srv, svc, _ := newRunnerServer(t)

	resp, _ := post(t, srv, "/api/v1/runner/complete", "Bearer tok-1", `{"outcome":"success"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, srv, "/api/v1/runner/complete", "Bearer tok-1", `{"taskId":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, svc.calls.Load())

	svc.set(func(f *fakeServices) {
		f.complete = &service.CompleteResult{TaskID: 3, Status: bizConsts.TaskFailed, Attempt: 3, Terminal: true}
	})
	resp, body := post(t, srv, "/api/v1/runner/complete", "Bearer tok-1", `{"taskId":3,"outcome":"failure"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, true, body["terminal"])

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.ErrLeaseConflict, http.StatusConflict, "lease_conflict"},
		{errs.New(errs.NotFound, "task 3 not found"), http.StatusNotFound, "not_found"},
		{errs.New(errs.Invalid, "outcome must be success or failure"), http.StatusBadRequest, "invalid"},
	}
	for _, tc := range cases {
		svc.set(func(f *fakeServices) { f.err = tc.err })
		resp, body := post(t, srv, "/api/v1/runner/complete", "Bearer tok-1", `{"taskId":3,"outcome":"success"}`)
		assert.Equal(t, tc.status, resp.StatusCode)
		assert.Equal(t, tc.code, body["code"])
	}
}

func TestRunnerRoutes_PermitDenialsCarryRetryAfter(t *testing.T) {
	srv, svc, _ := newRunnerServer(t)

	resp, body := post(t, srv, "/api/v1/runner/permit", "Bearer tok-1", `{"taskId":5,"leaseToken":"lt"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	svc.set(func(f *fakeServices) { f.err = errs.ErrRateLimited.WithRetryAfter(40 * time.Second) })
	resp, body = post(t, srv, "/api/v1/runner/permit", "Bearer tok-1", `{"taskId":5,"leaseToken":"lt"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.EqualValues(t, 40000, body["retryAfterMs"])
	assert.Equal(t, "40", resp.Header.Get("Retry-After"))

	svc.set(func(f *fakeServices) { f.err = errs.ErrBreakerOpen.WithRetryAfter(1500 * time.Millisecond) })
	resp, body = post(t, srv, "/api/v1/runner/permit", "Bearer tok-1", `{"taskId":5,"leaseToken":"lt"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "breaker_open", body["code"])
	assert.EqualValues(t, 1500, body["retryAfterMs"])
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
}

func TestRunnerRoutes_Release(t *testing.T) {
	srv, svc, _ := newRunnerServer(t)
	resp, _ := post(t, srv, "/api/v1/runner/release", "Bearer tok-1", `{"taskId":5,"leaseToken":"lt","retryAfterMs":40000}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 40*time.Second, svc.snapshot().released)
}

func TestRunnerRoutes_HeartbeatAndProgress(t *testing.T) {
	srv, svc, audit := newRunnerServer(t)

	resp, body := post(t, srv, "/api/v1/runner/heartbeat", "Bearer tok-1", `{"status":"busy","metrics":{"cpu":0.4},"configVersion":"v1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, body["pendingTaskCount"])
	assert.Contains(t, body, "runnerConfig")
	hb := svc.snapshot().heartbeat
	assert.Equal(t, bizConsts.RunnerBusy, hb.Status)
	assert.JSONEq(t, `{"cpu":0.4}`, string(hb.Metrics))

	resp, _ = post(t, srv, "/api/v1/runner/progress", "Bearer tok-1", `{"taskId":5,"stage":"compose"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = post(t, srv, "/api/v1/runner/progress", "Bearer tok-1",
		`{"taskId":5,"stage":"compose","status":"ok","evidenceRef":"s3://shots/5.png"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	entries := audit.list()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "runner-1", e.RunnerID)
	assert.Equal(t, "s3://shots/5.png", e.EvidenceRef)
	assert.Equal(t, t0, e.CreatedAt)
}

type fakeAdmin struct{}

func (fakeAdmin) CampaignStats(_ context.Context, id int64) (*service.CampaignStats, error) {
	if id != 1 {
		return nil, errs.New(errs.NotFound, "campaign %d not found", id)
	}
	return &service.CampaignStats{CampaignID: 1, Status: bizConsts.CampaignActive, Counts: model.StatusCounts{"queued": 2}}, nil
}

func (fakeAdmin) Breakers(context.Context) ([]breaker.Snapshot, error) {
	return []breaker.Snapshot{breaker.Fresh("crm")}, nil
}

func (fakeAdmin) Limits(_ context.Context, actor string) (*service.LimitStatus, error) {
	return &service.LimitStatus{Actor: actor, Allowed: true}, nil
}

func (fakeAdmin) Runner(_ context.Context, id string) (*model.Liveness, error) {
	return &model.Liveness{RunnerID: id, Status: bizConsts.RunnerOffline}, nil
}

func TestAdminRoutes(t *testing.T) {
	ctrl := NewAdminController()
	ctrl.Admin = fakeAdmin{}
	r := chi.NewRouter()
	r.Route("/api/v1/admin", ctrl.Mount)
	srv := httptest.NewServer(r)
	defer srv.Close()

	get := func(path string) (int, map[string]any) {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	code, body := get("/api/v1/admin/campaigns/1/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["counts"].(map[string]any)["queued"])

	code, _ = get("/api/v1/admin/campaigns/abc/stats")
	assert.Equal(t, http.StatusBadRequest, code)
	code, body = get("/api/v1/admin/campaigns/7/stats")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "campaign 7 not found", body["error"])

	code, body = get("/api/v1/admin/breakers")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = get("/api/v1/admin/limits/acct-1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "acct-1", body["actor"])

	code, body = get("/api/v1/admin/runners/r9")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "offline", body["status"])
}

type plainErr string

func (e plainErr) Error() string { return string(e) }
