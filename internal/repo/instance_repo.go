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

// InstanceRepo — репозиторий экземпляров процессов.
type InstanceRepo struct {
	pool *pgxpool.Pool
}

// NewInstanceRepo создаёт новый InstanceRepo.
func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

const instanceColumns = `id, operation_id, parent_id, type, module_name, step_index, state, created_at, updated_at`

// Create создаёт экземпляр процесса.
func (r *InstanceRepo) Create(ctx context.Context, inst *domain.ProcessInstance) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO process_instances (id, operation_id, parent_id, type, module_name,
		                               step_index, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		inst.ID,
		inst.OperationID,
		inst.ParentID,
		inst.Type,
		nullString(inst.ModuleName),
		inst.StepIndex,
		inst.State,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process instance: %w", err)
	}
	return nil
}

// GetByID возвращает экземпляр по ID.
func (r *InstanceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM process_instances WHERE id = $1`
	return scanInstance(r.pool.QueryRow(ctx, query, id))
}

// GetRoot возвращает корневой экземпляр операции.
func (r *InstanceRepo) GetRoot(ctx context.Context, operationID uuid.UUID) (*domain.ProcessInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM process_instances
		WHERE operation_id = $1 AND parent_id IS NULL`
	return scanInstance(r.pool.QueryRow(ctx, query, operationID))
}

// ListChildren возвращает дочерние экземпляры в порядке создания.
func (r *InstanceRepo) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.ProcessInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM process_instances
		WHERE parent_id = $1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list child instances: %w", err)
	}
	defer rows.Close()

	var insts []domain.ProcessInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		insts = append(insts, *inst)
	}
	return insts, rows.Err()
}

// Update персистит позицию и состояние экземпляра.
func (r *InstanceRepo) Update(ctx context.Context, inst *domain.ProcessInstance) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE process_instances
		SET step_index = $2, state = $3, updated_at = now()
		WHERE id = $1
	`, inst.ID, inst.StepIndex, inst.State)
	if err != nil {
		return fmt.Errorf("update process instance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstance(row pgx.Row) (*domain.ProcessInstance, error) {
	var inst domain.ProcessInstance
	var moduleName *string

	err := row.Scan(
		&inst.ID,
		&inst.OperationID,
		&inst.ParentID,
		&inst.Type,
		&moduleName,
		&inst.StepIndex,
		&inst.State,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan process instance: %w", err)
	}

	if moduleName != nil {
		inst.ModuleName = *moduleName
	}
	return &inst, nil
}
