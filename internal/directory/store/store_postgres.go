package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gatehouse/internal/directory/models"
	"gatehouse/internal/platform/postgres"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, society_id, name, mobile, roles, flat_no, status, device_tokens, created_at, deactivated_at`

func (s *PostgresStore) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID),
		uuid.UUID(a.SocietyID),
		a.Name,
		a.Mobile,
		pq.Array(a.Roles.Strings()),
		a.FlatNo,
		string(a.Status),
		pq.Array(a.DeviceTokens),
		a.CreatedAt,
		a.DeactivatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("mobile already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.AccountID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindByMobile(ctx context.Context, mobile string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1`
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, mobile))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account by mobile: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindActiveAccounts(ctx context.Context, society domain.SocietyID, flatNo string, role domain.Role) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE society_id = $1 AND flat_no = $2 AND status = $3 AND $4 = ANY(roles)
		ORDER BY created_at ASC
	`
	return s.queryAccounts(ctx, "find active accounts", query,
		uuid.UUID(society), flatNo, string(models.StatusActive), string(role))
}

// ListTenancies returns every tenancy the flat has had, including ended ones.
func (s *PostgresStore) ListTenancies(ctx context.Context, society domain.SocietyID, flatNo string) ([]models.Tenancy, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE society_id = $1 AND flat_no = $2 AND $3 = ANY(roles) AND status <> $4
		ORDER BY created_at ASC
	`
	tenants, err := s.queryAccounts(ctx, "list tenancies", query,
		uuid.UUID(society), flatNo, string(domain.RoleTenant), string(models.StatusPendingVerification))
	if err != nil {
		return nil, err
	}
	return tenanciesOf(tenants), nil
}

func (s *PostgresStore) ListOccupants(ctx context.Context, society domain.SocietyID) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE society_id = $1 AND status = $2 AND flat_no <> ''
		  AND roles && $3
		ORDER BY created_at ASC
	`
	return s.queryAccounts(ctx, "list occupants", query,
		uuid.UUID(society), string(models.StatusActive),
		pq.Array([]string{string(domain.RoleOwner), string(domain.RoleTenant)}))
}

// RegisterDeviceToken appends token unless already present.
func (s *PostgresStore) RegisterDeviceToken(ctx context.Context, id domain.AccountID, token string) error {
	query := `
		UPDATE accounts
		SET device_tokens = array_append(device_tokens, $2)
		WHERE id = $1 AND NOT ($2 = ANY(device_tokens))
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(id), token)
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Execute loads the account FOR UPDATE, validates and writes the mutation in
// one transaction.
func (s *PostgresStore) Execute(ctx context.Context, id domain.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin account tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	a, err := scanAccount(tx.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)

	update := `
		UPDATE accounts
		SET name = $2, roles = $3, flat_no = $4, status = $5, device_tokens = $6, deactivated_at = $7
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		uuid.UUID(a.ID), a.Name, pq.Array(a.Roles.Strings()), a.FlatNo,
		string(a.Status), pq.Array(a.DeviceTokens), a.DeactivatedAt,
	); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit account tx: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) queryAccounts(ctx context.Context, op, query string, args ...any) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}

func scanAccount(row interface{ Scan(dest ...any) error }) (*models.Account, error) {
	var (
		id, society   uuid.UUID
		a             models.Account
		roles, tokens []string
		status        string
		deactivatedAt sql.NullTime
	)
	if err := row.Scan(&id, &society, &a.Name, &a.Mobile, pq.Array(&roles), &a.FlatNo,
		&status, pq.Array(&tokens), &a.CreatedAt, &deactivatedAt); err != nil {
		return nil, err
	}
	roleSet, err := domain.ParseRoleSet(roles)
	if err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	a.ID = domain.AccountID(id)
	a.SocietyID = domain.SocietyID(society)
	a.Roles = roleSet
	a.Status = models.AccountStatus(status)
	a.DeviceTokens = tokens
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		a.DeactivatedAt = &t
	}
	return &a, nil
}
