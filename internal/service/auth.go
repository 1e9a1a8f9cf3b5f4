package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
)

type credential struct {
	runnerID string
	digest   []byte
}

// RunnerAuth resolves a bearer token to the runner it was issued to. Only sha256
// digests of tokens are held in memory.
type RunnerAuth struct {
	*core.BaseComponent
	creds []credential
}

func NewRunnerAuth(runners []config.RunnerCredential) (*RunnerAuth, error) {
	a := &RunnerAuth{BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_AUTH)}
	seen := map[string]bool{}
	for _, rc := range runners {
		if rc.RunnerID == "" {
			return nil, fmt.Errorf("runner credential without runner_id")
		}
		if seen[rc.RunnerID] {
			return nil, fmt.Errorf("duplicate runner credential %s", rc.RunnerID)
		}
		seen[rc.RunnerID] = true
		d, err := hex.DecodeString(strings.TrimSpace(rc.TokenSHA256))
		if err != nil || len(d) != sha256.Size {
			return nil, fmt.Errorf("runner %s: token_sha256 must be 64 hex chars", rc.RunnerID)
		}
		a.creds = append(a.creds, credential{runnerID: rc.RunnerID, digest: d})
	}
	sort.Slice(a.creds, func(i, j int) bool { return a.creds[i].runnerID < a.creds[j].runnerID })
	return a, nil
}

// Authenticate compares against every credential so timing does not reveal which one matched.
func (a *RunnerAuth) Authenticate(token string) (string, error) {
	if token == "" {
		return "", errs.New(errs.Unauthorized, "missing runner credential")
	}
	sum := sha256.Sum256([]byte(token))
	var match string
	for _, c := range a.creds {
		if subtle.ConstantTimeCompare(sum[:], c.digest) == 1 {
			match = c.runnerID
		}
	}
	if match == "" {
		return "", errs.New(errs.Unauthorized, "invalid runner credential")
	}
	return match, nil
}

// HashToken returns the token_sha256 value to configure for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
