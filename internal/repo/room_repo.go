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

// RoomRepo — репозиторий для работы с аудиториями.
type RoomRepo struct {
	pool *pgxpool.Pool
}

// NewRoomRepo создаёт новый RoomRepo.
func NewRoomRepo(pool *pgxpool.Pool) *RoomRepo {
	return &RoomRepo{pool: pool}
}

// GetByID возвращает аудиторию по ID.
func (r *RoomRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `SELECT id, name, description, created_at FROM rooms WHERE id = $1`

	var room domain.Room
	var description *string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&description,
		&room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}

	if description != nil {
		room.Description = *description
	}
	return &room, nil
}

// List возвращает все аудитории.
func (r *RoomRepo) List(ctx context.Context) ([]domain.Room, error) {
	query := `SELECT id, name, description, created_at FROM rooms ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var room domain.Room
		var description *string
		if err := rows.Scan(&room.ID, &room.Name, &description, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if description != nil {
			room.Description = *description
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
