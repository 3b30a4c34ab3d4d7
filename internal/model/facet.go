package model

import (
	"encoding/json"
	"time"
)

// Facet is one catalog filter value (a medical specialization) used to
// partition the search space during discovery.
type Facet struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// FacetStatus is the checkpoint state of a facet.
type FacetStatus string

const (
	FacetPending    FacetStatus = "pending"
	FacetInProgress FacetStatus = "in_progress"
	FacetDone       FacetStatus = "done"
)

// FacetProgress is the per-facet discovery checkpoint.
type FacetProgress struct {
	FacetID         int         `json:"facet_id"`
	LastPageScraped int         `json:"last_page_scraped"`
	TotalPages      *int        `json:"total_pages,omitempty"`
	Status          FacetStatus `json:"status"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Capped reports whether the facet was closed out before its last known page,
// which happens when an earlier run was limited by a page cap.
func (p *FacetProgress) Capped() bool {
	return p != nil && p.TotalPages != nil && p.LastPageScraped < *p.TotalPages
}

// FacetSummary aggregates per-facet discovery results for status reporting.
type FacetSummary struct {
	FacetID         int         `json:"facet_id"`
	Name            string      `json:"name"`
	Status          FacetStatus `json:"status"`
	LastPageScraped int         `json:"last_page_scraped"`
	TotalPages      *int        `json:"total_pages,omitempty"`
	Clinics         int         `json:"clinics"`
	// Shared counts linked clinics that are also linked to another facet.
	Shared int `json:"shared"`
}

// RunStatus is the state of a discover or enrich run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one execution of a stage.
type Run struct {
	ID         string          `json:"id"`
	Stage      string          `json:"stage"`
	Status     RunStatus       `json:"status"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
