// Package shortener allocates short codes, resolves them to their targets and
// reports click statistics.
package shortener

import (
	"context"
	"time"
)

// Mapping ties a short code to its target URL and validity window.
type Mapping struct {
	Code      string    `json:"code"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the mapping no longer redirects at instant now.
func (m *Mapping) ExpiredAt(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// ClickEvent is one successful resolution of a live mapping.
type ClickEvent struct {
	MappingCode string    `json:"mapping_code"`
	Timestamp   time.Time `json:"timestamp"`
	Referrer    string    `json:"referrer,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
}

// Visit carries the request details recorded with a click.
type Visit struct {
	Referrer string
	ClientIP string
}

// AllocateRequest is the input of Engine.Allocate.
type AllocateRequest struct {
	TargetURL  string
	Validity   time.Duration // zero selects the engine default
	CustomCode string        // empty asks the engine to generate one
}

// Stats is a mapping together with its full click history.
type Stats struct {
	Mapping     Mapping
	TotalClicks int
	Clicks      []ClickEvent
}

// MappingStore persists mappings. InsertMapping must fail with ErrCodeConflict when
// the code is already taken; the check and the insert are one atomic step.
type MappingStore interface {
	InsertMapping(ctx context.Context, m *Mapping) error
	// FindMapping returns ErrNotFound when no mapping was ever created for code.
	FindMapping(ctx context.Context, code string) (*Mapping, error)
}

// ClickLog is the append-only per-mapping event log.
type ClickLog interface {
	AppendClick(ctx context.Context, ev *ClickEvent) error
	// ListClicks returns the events for code in insertion order.
	ListClicks(ctx context.Context, code string) ([]ClickEvent, error)
}

// Generator produces candidate codes. Candidates are not guaranteed to be unique.
type Generator interface {
	Generate(length int) (string, error)
}

// ErrorReporter receives failures that must not reach the caller, such as a click
// that could not be written after a successful redirect decision.
type ErrorReporter interface {
	Report(ctx context.Context, op string, err error, attrs ...any)
}

// Clock returns the current time.
type Clock func() time.Time
