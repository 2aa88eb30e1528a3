package repo

import (
	"context"
	"database/sql"
	"strings"

	"leasekeeper/internal/domain"
)

type EventFilters struct {
	EntityID string
	Type     string
	AfterID  int64
	Limit    int
}

// ListEvents returns events oldest first, starting after AfterID.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// TailEvents returns the newest n events, oldest first.
func (r Repo) TailEvents(ctx context.Context, n int) ([]domain.Event, error) {
	var maxID int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&maxID); err != nil {
		return nil, err
	}
	after := maxID - int64(n)
	if after < 0 {
		after = 0
	}
	return r.ListEvents(ctx, EventFilters{AfterID: after})
}
