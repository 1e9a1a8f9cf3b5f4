package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/grand-thief-cash/chaos/outreach/internal/breaker"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
	"github.com/grand-thief-cash/chaos/outreach/internal/service"
)

type Authenticator interface {
	Authenticate(token string) (string, error)
}

type Claimer interface {
	Claim(ctx context.Context, runnerID string) (*model.ClaimedTask, error)
}

type Heartbeater interface {
	Heartbeat(ctx context.Context, runnerID string, req service.HeartbeatRequest) (*service.HeartbeatResult, error)
}

type Completer interface {
	Complete(ctx context.Context, runnerID string, req service.CompleteRequest) (*service.CompleteResult, error)
}

type Gate interface {
	Permit(ctx context.Context, runnerID string, taskID int64, leaseToken string) error
	Release(ctx context.Context, runnerID string, taskID int64, leaseToken string, retryAfter time.Duration) error
}

type AdminReader interface {
	CampaignStats(ctx context.Context, id int64) (*service.CampaignStats, error)
	Breakers(ctx context.Context) ([]breaker.Snapshot, error)
	Limits(ctx context.Context, actor string) (*service.LimitStatus, error)
	Runner(ctx context.Context, id string) (*model.Liveness, error)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
