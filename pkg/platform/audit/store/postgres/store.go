package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gatehouse/pkg/domain"
	audit "gatehouse/pkg/platform/audit"
	txcontext "gatehouse/pkg/platform/tx"
)

// Store persists audit events in the audit_events table. When a transaction
// is present in the context the row joins it, so an event is only durable
// together with the state change it describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, action, actor_id, society_id, visitor_id, flat_no,
			from_status, to_status, reason, client_ip, device, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Action,
		nullableUUID(uuid.UUID(event.ActorID)),
		nullableUUID(uuid.UUID(event.SocietyID)),
		nullableUUID(uuid.UUID(event.VisitorID)),
		event.FlatNo,
		event.FromStatus,
		event.ToStatus,
		event.Reason,
		event.ClientIP,
		event.Device,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByVisitor(ctx context.Context, visitorID domain.VisitorID) ([]audit.Event, error) {
	query := `
		SELECT category, action, actor_id, society_id, visitor_id, flat_no,
			from_status, to_status, reason, client_ip, device, request_id, created_at
		FROM audit_events
		WHERE visitor_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(visitorID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                           audit.Event
			category                    string
			actorID, societyID, visitID uuid.NullUUID
		)
		if err := rows.Scan(&category, &e.Action, &actorID, &societyID, &visitID, &e.FlatNo,
			&e.FromStatus, &e.ToStatus, &e.Reason, &e.ClientIP, &e.Device, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.ActorID = domain.AccountID(actorID.UUID)
		e.SocietyID = domain.SocietyID(societyID.UUID)
		e.VisitorID = domain.VisitorID(visitID.UUID)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
