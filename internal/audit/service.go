package audit

import (
	"context"

	"github.com/atelier-garage/garage/internal/shared"
)

// Repository reads audit records matching filters, newest first, along with
// the total number of matches.
type Repository interface {
	Timeline(ctx context.Context, filters TimelineFilters) ([]shared.AuditLog, int, error)
}

// Service serves the audit timeline.
type Service struct {
	repo Repository
}

// NewService constructs a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return Result{}, shared.Validation("'to' must not be before 'from'", map[string]string{"to": "gtefield"})
	}
	if filters.EntityID != "" && filters.Entity == "" {
		return Result{}, shared.Validation("entity is required with entity_id", map[string]string{"entity": "required_with"})
	}
	page := shared.NewPage(filters.Limit, filters.Offset)
	filters.Limit, filters.Offset = page.Limit, page.Offset

	logs, total, err := s.repo.Timeline(ctx, filters)
	if err != nil {
		return Result{}, shared.StorageError("load audit timeline", err)
	}
	items := make([]Entry, 0, len(logs))
	for _, l := range logs {
		items = append(items, entryFrom(l))
	}
	return Result{Items: items, Pagination: shared.NewPagination(page, total)}, nil
}
