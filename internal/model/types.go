package model

import (
	"time"

	"beamsched/internal/opt"
)

// Core domain types shared by the API, the store and the CLI.

// EdgeIn is one undirected travel link of an instance.
type EdgeIn struct {
	From   string `json:"from" yaml:"from" validate:"required"`
	To     string `json:"to" yaml:"to" validate:"required"`
	Weight int    `json:"weight" yaml:"weight" validate:"gt=0"`
}

// Instance is a complete search input document.
type Instance struct {
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Start   string         `json:"start" yaml:"start" validate:"required"`
	Horizon int            `json:"horizon" yaml:"horizon" validate:"gte=0,lte=10000"`
	Agents  int            `json:"agents" yaml:"agents" validate:"gte=1,lte=16"`
	Edges   []EdgeIn       `json:"edges" yaml:"edges" validate:"required,min=1,dive"`
	Rewards map[string]int `json:"rewards,omitempty" yaml:"rewards,omitempty" validate:"dive,keys,required,endkeys,gte=0"`
}

// SearchOptions are per-request overrides. Nil fields fall back to the
// tenant and service defaults.
type SearchOptions struct {
	Ceiling        *int   `json:"ceiling,omitempty" validate:"omitempty,gte=0"`
	Scorer         string `json:"scorer,omitempty" validate:"omitempty,oneof=raw projected discounted visit-penalty"`
	ThrashFactor   *int   `json:"thrashFactor,omitempty" validate:"omitempty,gte=0"`
	KeepDuplicates *bool  `json:"keepDuplicates,omitempty"`
	Workers        *int   `json:"workers,omitempty" validate:"omitempty,gte=1,lte=64"`
}

// Settings flattens the non-nil overrides into config keys.
func (o SearchOptions) Settings() map[string]any {
	out := map[string]any{}
	if o.Ceiling != nil {
		out["ceiling"] = *o.Ceiling
	}
	if o.Scorer != "" {
		out["scorer"] = o.Scorer
	}
	if o.ThrashFactor != nil {
		out["thrashFactor"] = *o.ThrashFactor
	}
	if o.KeepDuplicates != nil {
		out["keepDuplicates"] = *o.KeepDuplicates
	}
	if o.Workers != nil {
		out["workers"] = *o.Workers
	}
	return out
}

type SearchRequest struct {
	Instance Instance      `json:"instance" validate:"required"`
	Options  SearchOptions `json:"options"`
	Async    bool          `json:"async,omitempty"`
}

const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is a persisted search execution.
type Run struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenantId"`
	Name       string       `json:"name,omitempty"`
	Status     string       `json:"status"`
	Horizon    int          `json:"horizon"`
	Agents     int          `json:"agents"`
	Scorer     string       `json:"scorer,omitempty"`
	Ceiling    int          `json:"ceiling"`
	Reward     int          `json:"reward"`
	Activated  []string     `json:"activated,omitempty"`
	Error      string       `json:"error,omitempty"`
	Metrics    *opt.Metrics `json:"metrics,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

// Done reports whether the run reached a terminal status.
func (r Run) Done() bool { return r.Status == RunSucceeded || r.Status == RunFailed }

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url" validate:"required,url"`
	Events   []string `json:"events" validate:"required,min=1,dive,oneof=search.completed search.failed"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
