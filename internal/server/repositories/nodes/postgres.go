package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmaksimov/skydrive/internal/common"
	"github.com/dmaksimov/skydrive/internal/dbx"
	"github.com/dmaksimov/skydrive/internal/server/models"
)

const nodeColumns = `id, name, type, owner, parent_id, storage_key, size, mime_type, is_deleted, created_at, updated_at`

// PostgresRepository implements node storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isUniqueViolation reports whether err is the store's constraint-violation
// signal (SQLSTATE 23505), which repositories translate to ErrorConflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanNode(row interface{ Scan(dest ...any) error }) (*models.Node, error) {
	var (
		n          models.Node
		parentID   sql.NullString
		storageKey sql.NullString
	)
	err := row.Scan(&n.ID, &n.Name, &n.Type, &n.Owner, &parentID, &storageKey,
		&n.Size, &n.MimeType, &n.IsDeleted, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		n.ParentID = &parentID.String
	}
	if storageKey.Valid {
		n.StorageKey = storageKey.String
	}
	return &n, nil
}

// likeEscaper neutralizes LIKE metacharacters so search terms match
// literally. Backslash is the default escape character in Postgres.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (r *PostgresRepository) Create(ctx context.Context, node *models.Node) error {
	query := `
		INSERT INTO nodes (name, type, owner, parent_id, storage_key, size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		node.Name, node.Type, node.Owner, nullablePtr(node.ParentID),
		nullableStr(node.StorageKey), node.Size, node.MimeType,
	).Scan(&node.ID, &node.CreatedAt, &node.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`

	node, err := scanNode(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return node, nil
}

func (r *PostgresRepository) ListChildren(ctx context.Context, q ChildrenQuery) ([]*models.Node, int64, error) {
	where := ` WHERE owner = $1 AND parent_id IS NOT DISTINCT FROM $2 AND NOT is_deleted`
	args := []any{q.Owner, nullablePtr(q.ParentID)}

	if q.Search != "" {
		where += ` AND name ILIKE '%' || $3 || '%'`
		args = append(args, escapeLike(q.Search))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM nodes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count nodes: %w", err)
	}

	offset := (q.Page - 1) * q.Limit
	query := `SELECT ` + nodeColumns + ` FROM nodes` + where +
		` ORDER BY type DESC, name ASC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, q.Limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select nodes: %w", err)
	}
	defer rows.Close()

	var result []*models.Node
	for rows.Next() {
		item, err := scanNode(rows)
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

func (r *PostgresRepository) SiblingExists(ctx context.Context, owner string, parentID *string, typ models.NodeType, name string, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM nodes
			WHERE owner = $1
			  AND parent_id IS NOT DISTINCT FROM $2
			  AND type = $3
			  AND name = $4
			  AND NOT is_deleted
			  AND ($5::uuid IS NULL OR id <> $5::uuid)
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		owner, nullablePtr(parentID), typ, name, nullableStr(excludeID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

func (r *PostgresRepository) Update(ctx context.Context, node *models.Node) error {
	query := `
		UPDATE nodes
		SET name = $1, parent_id = $2, storage_key = $3, is_deleted = $4, updated_at = now()
		WHERE id = $5 AND owner = $6
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		node.Name, nullablePtr(node.ParentID), nullableStr(node.StorageKey),
		node.IsDeleted, node.ID, node.Owner,
	).Scan(&node.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		if isUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) MarkDeletedByParent(ctx context.Context, owner string, parentID string) ([]string, error) {
	query := `
		UPDATE nodes
		SET is_deleted = TRUE, updated_at = now()
		WHERE owner = $1 AND parent_id = $2 AND NOT is_deleted
		RETURNING id, type
	`
	rows, err := r.db.QueryContext(ctx, query, owner, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark children deleted: %w", err)
	}
	defer rows.Close()

	var folderIDs []string
	for rows.Next() {
		var (
			id  string
			typ models.NodeType
		)
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, err
		}
		if typ == models.NodeTypeFolder {
			folderIDs = append(folderIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return folderIDs, nil
}

func (r *PostgresRepository) SelectChildren(ctx context.Context, owner string, parentID string) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE owner = $1 AND parent_id = $2`

	rows, err := r.db.QueryContext(ctx, query, owner, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select children: %w", err)
	}
	defer rows.Close()

	var result []*models.Node
	for rows.Next() {
		item, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) CountDeletedChildren(ctx context.Context, owner string, parentID string) (int64, error) {
	query := `SELECT count(*) FROM nodes WHERE owner = $1 AND parent_id = $2 AND is_deleted`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, owner, parentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, owner string, id string) error {
	query := `DELETE FROM nodes WHERE id = $1 AND owner = $2`

	result, err := r.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
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
