// Package audit exposes the audit trail written by invoice and payment
// operations.
package audit

import (
	"time"

	"github.com/atelier-garage/garage/internal/shared"
)

// TimelineFilters narrows the audit trail. Zero values are ignored.
type TimelineFilters struct {
	Entity   string
	EntityID string
	Action   string
	ActorID  int64
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Entry is one audit record as returned by the API.
type Entry struct {
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actorId"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Result is a page of the timeline, newest first.
type Result struct {
	Items      []Entry           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func entryFrom(log shared.AuditLog) Entry {
	return Entry{
		At:       log.At,
		ActorID:  log.ActorID,
		Action:   log.Action,
		Entity:   log.Entity,
		EntityID: log.EntityID,
		Meta:     log.Meta,
	}
}
