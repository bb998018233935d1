package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Convoy/internal/domain"
)

// OperationRepo — репозиторий операций деплоя.
//
// Запись операции с acquired_lock=true одновременно служит advisory
// lock'ом на (mta_id, namespace, space_id): пока он не снят, вторая
// операция над тем же MTA стартовать не может.
type OperationRepo struct {
	pool *pgxpool.Pool
}

// NewOperationRepo создаёт новый OperationRepo.
func NewOperationRepo(pool *pgxpool.Pool) *OperationRepo {
	return &OperationRepo{pool: pool}
}

// Create создаёт операцию, атомарно захватывая lock на MTA.
// Конкурент с lock'ом на тот же (mta_id, namespace, space_id)
// даёт ErrConflictingOperation.
func (r *OperationRepo) Create(ctx context.Context, op *domain.Operation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var held int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM operations
		WHERE mta_id = $1 AND namespace = $2 AND space_id = $3 AND acquired_lock
	`, op.MTAID, op.Namespace, op.SpaceID).Scan(&held)
	if err != nil {
		return fmt.Errorf("check lock: %w", err)
	}
	if held > 0 {
		return ErrConflictingOperation
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO operations (id, type, mta_id, namespace, space_id, org_id, username,
		                        state, acquired_lock, abort_requested, error, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		op.ID,
		op.Type,
		op.MTAID,
		op.Namespace,
		op.SpaceID,
		op.OrgID,
		nullString(op.User),
		op.State,
		op.AcquiredLock,
		op.AbortRequested,
		nullString(op.Error),
		op.StartedAt,
		op.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return tx.Commit(ctx)
}

const operationColumns = `id, type, mta_id, namespace, space_id, org_id, username,
       state, acquired_lock, abort_requested, error, started_at, ended_at`

// GetByID возвращает операцию по ID.
func (r *OperationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`
	return scanOperation(r.pool.QueryRow(ctx, query, id))
}

// List возвращает список операций с фильтрацией.
func (r *OperationRepo) List(ctx context.Context, filter OperationFilter) ([]domain.Operation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM operations
		WHERE ($1::text IS NULL OR mta_id = $1)
		  AND ($2::text IS NULL OR space_id = $2)
		  AND ($3::text IS NULL OR state = $3::operation_state)
		ORDER BY started_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.MTAID),
		nullString(filter.SpaceID),
		nullString(string(filter.State)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// ListActive возвращает незавершённые операции (для polling-fallback движка).
func (r *OperationRepo) ListActive(ctx context.Context, limit int) ([]domain.Operation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM operations
		WHERE state = 'RUNNING'
		ORDER BY started_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list active operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// Update обновляет статус, lock, флаг отмены и времена операции.
func (r *OperationRepo) Update(ctx context.Context, op *domain.Operation) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE operations
		SET state = $2, acquired_lock = $3, abort_requested = $4, error = $5, ended_at = $6
		WHERE id = $1
	`,
		op.ID,
		op.State,
		op.AcquiredLock,
		op.AbortRequested,
		nullString(op.Error),
		op.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RequestAbort выставляет флаг отмены незавершённой операции.
func (r *OperationRepo) RequestAbort(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE operations
		SET abort_requested = true
		WHERE id = $1 AND state IN ('RUNNING', 'ERROR')
	`, id)
	if err != nil {
		return fmt.Errorf("request abort: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AbortRequested возвращает значение флага отмены операции.
func (r *OperationRepo) AbortRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var aborted bool
	err := r.pool.QueryRow(ctx,
		`SELECT abort_requested FROM operations WHERE id = $1`, id,
	).Scan(&aborted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get abort flag: %w", err)
	}
	return aborted, nil
}

// ReleaseStaleLocks снимает lock'и завершённых операций
// (страховка от падений между сменой статуса и снятием lock'а).
func (r *OperationRepo) ReleaseStaleLocks(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE operations
		SET acquired_lock = false
		WHERE acquired_lock AND state IN ('FINISHED', 'ABORTED')
	`)
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteFinishedBefore удаляет завершённые операции старше cutoff.
// Progress-сообщения и переменные уходят каскадом по FK.
func (r *OperationRepo) DeleteFinishedBefore(ctx context.Context, cutoff string) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM operations
		WHERE state IN ('FINISHED', 'ABORTED', 'ERROR')
		  AND ended_at IS NOT NULL
		  AND ended_at < now() - $1::interval
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished operations: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

// OperationFilter — параметры фильтрации операций.
type OperationFilter struct {
	MTAID   string
	SpaceID string
	State   domain.OperationState
	Limit   int
	Offset  int
}

func scanOperation(row pgx.Row) (*domain.Operation, error) {
	var op domain.Operation
	var user *string
	var opError *string

	err := row.Scan(
		&op.ID,
		&op.Type,
		&op.MTAID,
		&op.Namespace,
		&op.SpaceID,
		&op.OrgID,
		&user,
		&op.State,
		&op.AcquiredLock,
		&op.AbortRequested,
		&opError,
		&op.StartedAt,
		&op.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	if user != nil {
		op.User = *user
	}
	if opError != nil {
		op.Error = *opError
	}
	return &op, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
