package adapter

import (
	"context"
	"errors"

	presence "go-lounge/internal/pkg/presence/application/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) SaveMessage(ctx context.Context, m presence.Message) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgMessageRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lounge.message (
			room_id, sender_key, display_name, avatar, color, body, reply_to, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::uuid, $8)
		RETURNING id::text
	`, m.RoomID, m.SenderKey, m.DisplayName, m.Avatar, m.Color, m.Text, m.ReplyTo, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *PgMessageRepository) ListRoomMessages(ctx context.Context, roomID string, limit, offset int) ([]presence.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMessageRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, room_id::text, sender_key, display_name, avatar, color, body, reply_to::text, created_at
		FROM lounge.message
		WHERE room_id = $1::uuid
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []presence.Message
	for rows.Next() {
		var m presence.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderKey, &m.DisplayName, &m.Avatar, &m.Color, &m.Text, &m.ReplyTo, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
