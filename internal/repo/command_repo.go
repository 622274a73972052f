package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unilab/unilab/internal/domain"
)

// CommandRepo — репозиторий для работы с командами.
type CommandRepo struct {
	pool *pgxpool.Pool
}

// NewCommandRepo создаёт новый CommandRepo.
func NewCommandRepo(pool *pgxpool.Pool) *CommandRepo {
	return &CommandRepo{pool: pool}
}

const commandColumns = `id, computer_id, room_id, is_broadcast, type, status,
       params, completed_at, error, output, created_at, updated_at`

// Create создаёт новую команду.
func (r *CommandRepo) Create(ctx context.Context, cmd *domain.Command) error {
	paramsJSON, err := marshalParams(cmd.Params)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO commands (id, computer_id, room_id, is_broadcast, type, status,
		                      params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		cmd.ID,
		cmd.ComputerID,
		cmd.RoomID,
		cmd.IsBroadcast,
		cmd.Type,
		cmd.Status,
		paramsJSON,
		cmd.CreatedAt,
		cmd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// GetByID возвращает команду по ID.
func (r *CommandRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Command, error) {
	query := `SELECT ` + commandColumns + ` FROM commands WHERE id = $1`
	return scanCommand(r.pool.QueryRow(ctx, query, id))
}

// UpdateStatus обновляет статус доставки команды.
func (r *CommandRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CommandStatus) error {
	query := `UPDATE commands SET status = $2, updated_at = now() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update command status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize фиксирует результат выполнения команды от агента.
func (r *CommandRepo) Finalize(ctx context.Context, cmd *domain.Command) error {
	query := `
		UPDATE commands
		SET status = $2, completed_at = $3, error = $4, output = $5, updated_at = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		cmd.ID,
		cmd.Status,
		cmd.CompletedAt,
		nullString(cmd.Error),
		nullString(cmd.Output),
	)
	if err != nil {
		return fmt.Errorf("finalize command: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRetryable возвращает команды, ожидающие повторной доставки:
// queued и зависшие pending (процесс упал между публикацией и
// обновлением статуса).
func (r *CommandRepo) ListRetryable(ctx context.Context, staleBefore time.Time, limit int) ([]domain.Command, error) {
	query := `
		SELECT ` + commandColumns + `
		FROM commands
		WHERE status = 'queued'
		   OR (status = 'pending' AND updated_at < $1)
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// List возвращает команды с фильтрацией.
func (r *CommandRepo) List(ctx context.Context, filter CommandFilter) ([]domain.Command, error) {
	query := `
		SELECT ` + commandColumns + `
		FROM commands
		WHERE ($1::uuid IS NULL OR room_id = $1)
		  AND ($2::uuid IS NULL OR computer_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.RoomID),
		nullUUID(filter.ComputerID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// --- Helpers ---

// CommandFilter — параметры фильтрации команд.
type CommandFilter struct {
	RoomID     *uuid.UUID
	ComputerID *uuid.UUID
	Status     domain.CommandStatus
	Limit      int
	Offset     int
}

func collectCommands(rows pgx.Rows) ([]domain.Command, error) {
	var cmds []domain.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, *cmd)
	}
	return cmds, rows.Err()
}

func scanCommand(row pgx.Row) (*domain.Command, error) {
	var cmd domain.Command
	var paramsJSON []byte
	var cmdError, cmdOutput *string

	err := row.Scan(
		&cmd.ID,
		&cmd.ComputerID,
		&cmd.RoomID,
		&cmd.IsBroadcast,
		&cmd.Type,
		&cmd.Status,
		&paramsJSON,
		&cmd.CompletedAt,
		&cmdError,
		&cmdOutput,
		&cmd.CreatedAt,
		&cmd.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan command: %w", err)
	}

	if paramsJSON != nil {
		var raw map[string]any
		if err := json.Unmarshal(paramsJSON, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
		params, err := domain.DecodeParams(cmd.Type, raw)
		if err != nil {
			return nil, err
		}
		cmd.Params = params
	}

	if cmdError != nil {
		cmd.Error = *cmdError
	}
	if cmdOutput != nil {
		cmd.Output = *cmdOutput
	}

	return &cmd, nil
}

func marshalParams(p domain.Params) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := domain.EncodeParams(p)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
