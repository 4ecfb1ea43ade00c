package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gatehouse/internal/gatepass/models"
	"gatehouse/internal/occupancy"
	"gatehouse/internal/platform/postgres"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
	txcontext "gatehouse/pkg/platform/tx"
)

// PostgresStore persists visitor logs in PostgreSQL. Writes join a
// transaction carried by the context so audit rows commit with them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const visitorColumns = `id, society_id, flat_no, person_name, person_mobile, purpose, vehicle_no,
	photo_url, entry_type, delivery_company, parcel_type, guard_id, resident_id, approved_by, status,
	otp, otp_status, otp_expires_at, otp_issued_by, otp_verified_at,
	check_in_at, check_out_at, created_at, updated_at`

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbConn {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, v *models.VisitorLog) error {
	query := `
		INSERT INTO visitor_logs (` + visitorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	if _, err := s.conn(ctx).ExecContext(ctx, query, insertArgs(v)...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("visitor log: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create visitor log: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.VisitorID) (*models.VisitorLog, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitor_logs WHERE id = $1`
	v, err := scanVisitor(s.conn(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find visitor log: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) FindActiveGuestPass(ctx context.Context, society domain.SocietyID, code string) (*models.VisitorLog, error) {
	query := `
		SELECT ` + visitorColumns + `
		FROM visitor_logs
		WHERE society_id = $1 AND otp = $2 AND otp_status = $3 AND status = $4
	`
	v, err := scanVisitor(s.conn(ctx).QueryRowContext(ctx, query,
		uuid.UUID(society), code, string(models.OTPActive), string(models.StatusApproved)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find guest pass: %w", err)
	}
	return v, nil
}

// Execute locks the row FOR UPDATE, validates and writes the mutation. A
// concurrent caller blocks on the lock and then validates against the
// committed state, so only one of two racing transitions succeeds.
func (s *PostgresStore) Execute(ctx context.Context, id domain.VisitorID, validate func(*models.VisitorLog) error, mutate func(*models.VisitorLog)) (*models.VisitorLog, error) {
	var out *models.VisitorLog
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query := `SELECT ` + visitorColumns + ` FROM visitor_logs WHERE id = $1 FOR UPDATE`
		v, err := scanVisitor(tx.QueryRowContext(ctx, query, uuid.UUID(id)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock visitor log: %w", err)
		}
		if err := validate(v); err != nil {
			return err
		}
		mutate(v)

		update := `
			UPDATE visitor_logs
			SET guard_id = $2, approved_by = $3, status = $4, otp_status = $5,
				otp_verified_at = $6, check_in_at = $7, check_out_at = $8, updated_at = $9
			WHERE id = $1
		`
		var (
			otpStatus  sql.NullString
			verifiedAt *time.Time
		)
		if v.Pass != nil {
			otpStatus = sql.NullString{String: string(v.Pass.Status), Valid: true}
			verifiedAt = v.Pass.VerifiedAt
		}
		if _, err := tx.ExecContext(ctx, update,
			uuid.UUID(id), nullableID(v.GuardID), nullableID(v.ApprovedBy), string(v.Status),
			otpStatus, verifiedAt, v.CheckInAt, v.CheckOutAt, v.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update visitor log: %w", err)
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one page of matches, newest first, and the total count.
func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]*models.VisitorLog, int, error) {
	where, args := listPredicate(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM visitor_logs WHERE ` + where
	if err := s.conn(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visitor logs: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`
		SELECT %s FROM visitor_logs
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, visitorColumns, where, len(args)-1, len(args))

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list visitor logs: %w", err)
	}
	defer rows.Close()
	var out []*models.VisitorLog
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan visitor log: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate visitor logs: %w", err)
	}
	return out, total, nil
}

// listPredicate renders the filter as a WHERE clause. Visibility windows are
// half-open, matching occupancy.Window.Contains.
func listPredicate(f models.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	clauses = append(clauses, "society_id = "+arg(uuid.UUID(f.SocietyID)))
	if f.FlatNo != "" {
		clauses = append(clauses, "flat_no = "+arg(f.FlatNo))
	}
	if f.Status != "" {
		clauses = append(clauses, "status = "+arg(string(f.Status)))
	}
	if vis := f.Visibility; vis != nil {
		window := func(w occupancy.Window) string {
			c := "created_at >= " + arg(w.From)
			if w.To != nil {
				c += " AND created_at < " + arg(*w.To)
			}
			return c
		}
		if vis.Include != nil {
			clauses = append(clauses, "("+window(*vis.Include)+")")
		}
		for _, w := range vis.Exclude {
			clauses = append(clauses, "NOT ("+window(w)+")")
		}
	}
	return strings.Join(clauses, " AND "), args
}

func insertArgs(v *models.VisitorLog) []any {
	var (
		code, otpStatus sql.NullString
		expiresAt       sql.NullTime
		issuedBy        any
		verifiedAt      *time.Time
	)
	if p := v.Pass; p != nil {
		code = sql.NullString{String: p.Code, Valid: true}
		otpStatus = sql.NullString{String: string(p.Status), Valid: true}
		expiresAt = sql.NullTime{Time: p.ExpiresAt, Valid: true}
		issuedBy = uuid.UUID(p.IssuedBy)
		verifiedAt = p.VerifiedAt
	}
	return []any{
		uuid.UUID(v.ID), uuid.UUID(v.SocietyID), v.FlatNo, v.PersonName, v.PersonMobile,
		v.Purpose, v.VehicleNo, v.PhotoURL, string(v.EntryType), v.DeliveryCompany, v.ParcelType,
		nullableID(v.GuardID), nullableID(v.ResidentID), nullableID(v.ApprovedBy), string(v.Status),
		code, otpStatus, expiresAt, issuedBy, verifiedAt,
		v.CheckInAt, v.CheckOutAt, v.CreatedAt, v.UpdatedAt,
	}
}

func nullableID(id *domain.AccountID) any {
	if id == nil {
		return nil
	}
	return uuid.UUID(*id)
}

func scanVisitor(row interface{ Scan(dest ...any) error }) (*models.VisitorLog, error) {
	var (
		v                                  models.VisitorLog
		id, society                        uuid.UUID
		guard, resident, approver, issuer  uuid.NullUUID
		entryType, status                  string
		code, otpStatus                    sql.NullString
		expiresAt, verifiedAt, checkIn, co sql.NullTime
	)
	if err := row.Scan(&id, &society, &v.FlatNo, &v.PersonName, &v.PersonMobile, &v.Purpose,
		&v.VehicleNo, &v.PhotoURL, &entryType, &v.DeliveryCompany, &v.ParcelType,
		&guard, &resident, &approver, &status,
		&code, &otpStatus, &expiresAt, &issuer, &verifiedAt,
		&checkIn, &co, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.ID = domain.VisitorID(id)
	v.SocietyID = domain.SocietyID(society)
	v.EntryType = models.EntryType(entryType)
	v.Status = models.Status(status)
	v.GuardID = accountPtr(guard)
	v.ResidentID = accountPtr(resident)
	v.ApprovedBy = accountPtr(approver)
	v.CheckInAt = timePtr(checkIn)
	v.CheckOutAt = timePtr(co)
	if code.Valid {
		v.Pass = &models.GuestPass{
			Code:       code.String,
			Status:     models.OTPStatus(otpStatus.String),
			ExpiresAt:  expiresAt.Time,
			VerifiedAt: timePtr(verifiedAt),
		}
		if issuer.Valid {
			v.Pass.IssuedBy = domain.AccountID(issuer.UUID)
		}
	}
	return &v, nil
}

func accountPtr(id uuid.NullUUID) *domain.AccountID {
	if !id.Valid {
		return nil
	}
	a := domain.AccountID(id.UUID)
	return &a
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
