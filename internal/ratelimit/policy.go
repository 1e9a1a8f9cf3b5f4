package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Window allows at most Limit events in any trailing interval of Size.
type Window struct {
	Name  string        `json:"name"`
	Size  time.Duration `json:"size"`
	Limit int           `json:"limit"`
}

// Policy windows are AND-combined.
type Policy []Window

func (p Policy) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("rate limit policy has no windows")
	}
	seen := map[string]struct{}{}
	for _, w := range p {
		if w.Name == "" || w.Size <= 0 || w.Limit <= 0 {
			return fmt.Errorf("invalid window %+v", w)
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("duplicate window %s", w.Name)
		}
		seen[w.Name] = struct{}{}
	}
	return nil
}

// Widest is the largest window size; events older than it are useless.
func (p Policy) Widest() time.Duration {
	var max time.Duration
	for _, w := range p {
		if w.Size > max {
			max = w.Size
		}
	}
	return max
}

// Sorted returns the windows ordered by size, narrowest first.
func (p Policy) Sorted() Policy {
	out := append(Policy(nil), p...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Size < out[j].Size })
	return out
}

// ReferencePolicy is the default sender-account policy.
func ReferencePolicy() Policy {
	return Policy{
		{Name: "minute", Size: time.Minute, Limit: 2},
		{Name: "hour", Size: time.Hour, Limit: 20},
		{Name: "day", Size: 24 * time.Hour, Limit: 100},
		{Name: "week", Size: 7 * 24 * time.Hour, Limit: 400},
	}
}

// CapPolicy builds a campaign policy from hourly and daily caps. Caps <= 0 are skipped;
// nil means the campaign is uncapped.
func CapPolicy(hourly, daily int) Policy {
	var p Policy
	if hourly > 0 {
		p = append(p, Window{Name: "hour", Size: time.Hour, Limit: hourly})
	}
	if daily > 0 {
		p = append(p, Window{Name: "day", Size: 24 * time.Hour, Limit: daily})
	}
	return p
}
