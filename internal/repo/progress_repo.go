package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Convoy/internal/domain"
)

// ProgressRepo — репозиторий progress-сообщений операций.
type ProgressRepo struct {
	pool *pgxpool.Pool
}

// NewProgressRepo создаёт новый ProgressRepo.
func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

// Create сохраняет progress-сообщение.
func (r *ProgressRepo) Create(ctx context.Context, msg *domain.ProgressMessage) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO progress_messages (operation_id, task_id, type, text, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		msg.OperationID,
		msg.TaskID,
		msg.Type,
		msg.Text,
		msg.Timestamp,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert progress message: %w", err)
	}
	return nil
}

// ListByOperation возвращает сообщения операции начиная с afterID
// (для инкрементального tail'а в CLI).
func (r *ProgressRepo) ListByOperation(ctx context.Context, operationID uuid.UUID, afterID int64) ([]domain.ProgressMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, operation_id, task_id, type, text, timestamp
		FROM progress_messages
		WHERE operation_id = $1 AND id > $2
		ORDER BY id ASC
	`, operationID, afterID)
	if err != nil {
		return nil, fmt.Errorf("list progress messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.ProgressMessage
	for rows.Next() {
		var m domain.ProgressMessage
		if err := rows.Scan(&m.ID, &m.OperationID, &m.TaskID, &m.Type, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan progress message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
