package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unilab/unilab/internal/domain"
)

// ComputerRepo — репозиторий для работы с компьютерами.
type ComputerRepo struct {
	pool *pgxpool.Pool
}

// NewComputerRepo создаёт новый ComputerRepo.
func NewComputerRepo(pool *pgxpool.Pool) *ComputerRepo {
	return &ComputerRepo{pool: pool}
}

const computerColumns = `id, room_id, hostname, mac_address, ip_address, status,
       last_heartbeat_at, pos_row, pos_col, created_at, updated_at`

// Create регистрирует новый компьютер.
func (r *ComputerRepo) Create(ctx context.Context, c *domain.Computer) error {
	query := `
		INSERT INTO computers (id, room_id, hostname, mac_address, ip_address, status,
		                       last_heartbeat_at, pos_row, pos_col, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.RoomID,
		c.Hostname,
		c.MACAddress,
		nullString(c.IPAddress),
		c.Status,
		c.LastHeartbeatAt,
		c.PosRow,
		c.PosCol,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert computer: %w", translateError(err))
	}
	return nil
}

// GetByID возвращает компьютер по ID.
func (r *ComputerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Computer, error) {
	query := `SELECT ` + computerColumns + ` FROM computers WHERE id = $1`
	return scanComputer(r.pool.QueryRow(ctx, query, id))
}

// GetInRoom возвращает компьютер, если он принадлежит аудитории.
// Несовпадение аудитории равнозначно отсутствию записи.
func (r *ComputerRepo) GetInRoom(ctx context.Context, roomID, computerID uuid.UUID) (*domain.Computer, error) {
	query := `SELECT ` + computerColumns + ` FROM computers WHERE id = $1 AND room_id = $2`
	return scanComputer(r.pool.QueryRow(ctx, query, computerID, roomID))
}

// ListInRoom возвращает компьютеры аудитории из заданного списка id.
// Пустой список id — все компьютеры аудитории.
func (r *ComputerRepo) ListInRoom(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) ([]domain.Computer, error) {
	query := `
		SELECT ` + computerColumns + `
		FROM computers
		WHERE room_id = $1
		  AND (cardinality($2::uuid[]) = 0 OR id = ANY($2))
		ORDER BY pos_row, pos_col
	`
	rows, err := r.pool.Query(ctx, query, roomID, ids)
	if err != nil {
		return nil, fmt.Errorf("list computers in room: %w", err)
	}
	defer rows.Close()

	return collectComputers(rows)
}

// CountAvailable возвращает число компьютеров аудитории,
// готовых принимать команды (online, idle).
func (r *ComputerRepo) CountAvailable(ctx context.Context, roomID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM computers
		WHERE room_id = $1 AND status = ANY($2::text[])
	`
	var n int
	err := r.pool.QueryRow(ctx, query, roomID, availableStatuses()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available computers: %w", err)
	}
	return n, nil
}

// CountAvailableTotal возвращает число доступных компьютеров во всей системе.
func (r *ComputerRepo) CountAvailableTotal(ctx context.Context) (int, error) {
	query := `SELECT count(*) FROM computers WHERE status = ANY($1::text[])`
	var n int
	err := r.pool.QueryRow(ctx, query, availableStatuses()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available computers: %w", err)
	}
	return n, nil
}

// ListAll возвращает все компьютеры (для timeout-sweep).
func (r *ComputerRepo) ListAll(ctx context.Context) ([]domain.Computer, error) {
	query := `SELECT ` + computerColumns + ` FROM computers ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list computers: %w", err)
	}
	defer rows.Close()

	return collectComputers(rows)
}

// UpdateState сохраняет статус и heartbeat-время компьютера.
func (r *ComputerRepo) UpdateState(ctx context.Context, c *domain.Computer) error {
	query := `
		UPDATE computers
		SET status = $2, last_heartbeat_at = $3, ip_address = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Status,
		c.LastHeartbeatAt,
		nullString(c.IPAddress),
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update computer state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func availableStatuses() []string {
	return []string{
		string(domain.ComputerStatusOnline),
		string(domain.ComputerStatusIdle),
	}
}

func collectComputers(rows pgx.Rows) ([]domain.Computer, error) {
	var computers []domain.Computer
	for rows.Next() {
		c, err := scanComputer(rows)
		if err != nil {
			return nil, err
		}
		computers = append(computers, *c)
	}
	return computers, rows.Err()
}

func scanComputer(row pgx.Row) (*domain.Computer, error) {
	var c domain.Computer
	var ipAddress *string

	err := row.Scan(
		&c.ID,
		&c.RoomID,
		&c.Hostname,
		&c.MACAddress,
		&ipAddress,
		&c.Status,
		&c.LastHeartbeatAt,
		&c.PosRow,
		&c.PosCol,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan computer: %w", err)
	}

	if ipAddress != nil {
		c.IPAddress = *ipAddress
	}

	return &c, nil
}
