package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VariableRepo — durable-хранилище переменных процессов.
//
// Реализует process.Store для одного экземпляра процесса и
// process.HistoricStore для чтения переменных дочерних экземпляров.
// Запись идёт write-through: каждая Set — отдельный upsert, чтобы
// переменные переживали падение движка на любом тике.
type VariableRepo struct {
	pool       *pgxpool.Pool
	instanceID uuid.UUID
}

// NewVariableRepo создаёт хранилище переменных экземпляра instanceID.
func NewVariableRepo(pool *pgxpool.Pool, instanceID uuid.UUID) *VariableRepo {
	return &VariableRepo{pool: pool, instanceID: instanceID}
}

// Get возвращает значение переменной текущего экземпляра.
func (r *VariableRepo) Get(ctx context.Context, name string) ([]byte, bool, error) {
	return r.get(ctx, r.instanceID, name)
}

// Set устанавливает значение переменной текущего экземпляра.
func (r *VariableRepo) Set(ctx context.Context, name string, value []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO process_variables (instance_id, name, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (instance_id, name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, r.instanceID, name, value)
	if err != nil {
		return fmt.Errorf("set variable %q: %w", name, err)
	}
	return nil
}

// Remove удаляет переменную. Отсутствие переменной — не ошибка.
func (r *VariableRepo) Remove(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM process_variables WHERE instance_id = $1 AND name = $2`,
		r.instanceID, name,
	)
	if err != nil {
		return fmt.Errorf("remove variable %q: %w", name, err)
	}
	return nil
}

// GetHistoric возвращает значение переменной другого экземпляра,
// в том числе уже завершённого.
func (r *VariableRepo) GetHistoric(ctx context.Context, instanceID uuid.UUID, name string) ([]byte, bool, error) {
	return r.get(ctx, instanceID, name)
}

// ListChildInstances возвращает идентификаторы дочерних экземпляров.
func (r *VariableRepo) ListChildInstances(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM process_instances WHERE parent_id = $1 ORDER BY created_at ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list child instances: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *VariableRepo) get(ctx context.Context, instanceID uuid.UUID, name string) ([]byte, bool, error) {
	var value []byte
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM process_variables WHERE instance_id = $1 AND name = $2`,
		instanceID, name,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get variable %q: %w", name, err)
	}
	return value, true, nil
}
