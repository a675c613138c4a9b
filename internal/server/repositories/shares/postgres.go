package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/dbx"
	"github.com/dmaksimov/skydrive/internal/server/models"
)

const shareColumns = `id, node_id, token, can_view, can_edit, can_share, access_level, expires_at, password_hash, created_by, created_at, updated_at`

// PostgresRepository implements share-link storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanShare(row interface{ Scan(dest ...any) error }) (*models.ShareLink, error) {
	var (
		s         models.ShareLink
		expiresAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.NodeID, &s.Token,
		&s.Permissions.CanView, &s.Permissions.CanEdit, &s.Permissions.CanShare,
		&s.AccessLevel, &expiresAt, &s.PasswordHash, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		s.ExpiresAt = &expiresAt.Time
	}
	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, share *models.ShareLink) error {
	query := `
		INSERT INTO share_links (node_id, token, can_view, can_edit, can_share, access_level, expires_at, password_hash, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	var expiresAt any
	if share.ExpiresAt != nil {
		expiresAt = *share.ExpiresAt
	}

	err := r.db.QueryRowContext(ctx, query,
		share.NodeID, share.Token,
		share.Permissions.CanView, share.Permissions.CanEdit, share.Permissions.CanShare,
		share.AccessLevel, expiresAt, share.PasswordHash, share.CreatedBy,
	).Scan(&share.ID, &share.CreatedAt, &share.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, createdBy string, id string) (*models.ShareLink, error) {
	query := `SELECT ` + shareColumns + ` FROM share_links WHERE id = $1 AND created_by = $2`

	share, err := scanShare(r.db.QueryRowContext(ctx, query, id, createdBy))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return share, nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	query := `SELECT ` + shareColumns + ` FROM share_links WHERE token = $1`

	share, err := scanShare(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return share, nil
}

func (r *PostgresRepository) ListByCreator(ctx context.Context, createdBy string, page, limit int) ([]*models.ShareLink, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM share_links WHERE created_by = $1`, createdBy,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count shares: %w", err)
	}

	query := `SELECT ` + shareColumns + ` FROM share_links
		WHERE created_by = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, createdBy, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select shares: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareLink
	for rows.Next() {
		item, err := scanShare(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PostgresRepository) Update(ctx context.Context, share *models.ShareLink) error {
	query := `
		UPDATE share_links
		SET can_view = $1, can_edit = $2, can_share = $3, access_level = $4,
		    expires_at = $5, password_hash = $6, updated_at = now()
		WHERE id = $7 AND created_by = $8
		RETURNING updated_at
	`
	var expiresAt any
	if share.ExpiresAt != nil {
		expiresAt = *share.ExpiresAt
	}

	err := r.db.QueryRowContext(ctx, query,
		share.Permissions.CanView, share.Permissions.CanEdit, share.Permissions.CanShare,
		share.AccessLevel, expiresAt, share.PasswordHash,
		share.ID, share.CreatedBy,
	).Scan(&share.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, createdBy string, id string) error {
	query := `DELETE FROM share_links WHERE id = $1 AND created_by = $2`

	result, err := r.db.ExecContext(ctx, query, id, createdBy)
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
