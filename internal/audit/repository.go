package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
)

// PostgresRepository reads audit_logs.
type PostgresRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgresRepository.
func NewRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Timeline implements Repository.
func (r *PostgresRepository) Timeline(ctx context.Context, f TimelineFilters) ([]shared.AuditLog, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ActorID != 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT actor_id, action, entity, entity_id, meta, occurred_at FROM audit_logs %s
ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []shared.AuditLog
	for rows.Next() {
		var (
			l    shared.AuditLog
			meta []byte
		)
		if err := rows.Scan(&l.ActorID, &l.Action, &l.Entity, &l.EntityID, &meta, &l.At); err != nil {
			return nil, 0, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &l.Meta); err != nil {
				return nil, 0, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}
