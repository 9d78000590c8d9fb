package memstore

import (
	"context"
	"slices"

	"github.com/atelier-garage/garage/internal/audit"
	"github.com/atelier-garage/garage/internal/shared"
)

// AuditRepo implements audit.Repository.
type AuditRepo struct{ s *Store }

// Audit returns the audit repository view.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s} }

// Timeline implements audit.Repository.
func (r *AuditRepo) Timeline(_ context.Context, f audit.TimelineFilters) ([]shared.AuditLog, int, error) {
	var matched []shared.AuditLog
	r.s.read(func(st *state) {
		for _, l := range st.audit {
			if matches(l, f) {
				matched = append(matched, l)
			}
		}
	})
	slices.Reverse(matched)
	slices.SortStableFunc(matched, func(a, b shared.AuditLog) int { return b.At.Compare(a.At) })
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

// SeedAudit appends an audit record outside any transaction.
func (s *Store) SeedAudit(log shared.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.audit = append(s.st.audit, log)
}

func matches(l shared.AuditLog, f audit.TimelineFilters) bool {
	switch {
	case f.Entity != "" && l.Entity != f.Entity:
		return false
	case f.EntityID != "" && l.EntityID != f.EntityID:
		return false
	case f.Action != "" && l.Action != f.Action:
		return false
	case f.ActorID != 0 && l.ActorID != f.ActorID:
		return false
	case !f.From.IsZero() && l.At.Before(f.From):
		return false
	case !f.To.IsZero() && !l.At.Before(f.To):
		return false
	}
	return true
}
