package adapter

import (
	"context"
	"errors"
	"time"

	presence "go-lounge/internal/pkg/presence/application/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgMembershipRepository struct {
	pool *pgxpool.Pool
}

func NewPgMembershipRepository(pool *pgxpool.Pool) *PgMembershipRepository {
	return &PgMembershipRepository{pool: pool}
}

func (r *PgMembershipRepository) CreateRoom(ctx context.Context, room presence.Room) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgMembershipRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lounge.room (name, extended_session, created_at)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, room.Name, room.ExtendedSession, room.CreatedAt).Scan(&id)
	return id, err
}

func (r *PgMembershipRepository) GetRoom(ctx context.Context, roomID string) (*presence.Room, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMembershipRepository: nil pool")
	}
	var room presence.Room
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, extended_session, created_at
		FROM lounge.room
		WHERE id = $1::uuid
	`, roomID).Scan(&room.ID, &room.Name, &room.ExtendedSession, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, presence.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *PgMembershipRepository) ListRoomIDs(ctx context.Context) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMembershipRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `SELECT id::text FROM lounge.room ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMembership inserts the row inside a transaction that locks the room
// row, so two simultaneous first joiners cannot both become host.
func (r *PgMembershipRepository) CreateMembership(ctx context.Context, m presence.Membership) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMembershipRepository: nil pool")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var roomID string
	err = tx.QueryRow(ctx, `SELECT id::text FROM lounge.room WHERE id = $1::uuid FOR UPDATE`, m.RoomID).Scan(&roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return presence.ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO lounge.membership (
			room_id, user_key, display_name, avatar, color,
			last_activity, is_afk, afk_since, manual_afk, is_host, joined_at
		)
		VALUES (
			$1::uuid, $2, $3, $4, $5,
			$6, false, NULL, false,
			NOT EXISTS (SELECT 1 FROM lounge.membership WHERE room_id = $1::uuid AND is_host),
			$6
		)
		ON CONFLICT (room_id, user_key)
		DO UPDATE SET display_name  = EXCLUDED.display_name,
		              avatar        = EXCLUDED.avatar,
		              color         = EXCLUDED.color,
		              last_activity = GREATEST(lounge.membership.last_activity, EXCLUDED.last_activity)
	`, m.RoomID, m.UserKey, m.DisplayName, m.Avatar, m.Color, m.LastActivity)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgMembershipRepository) GetMembership(ctx context.Context, roomID, userKey string) (*presence.Membership, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMembershipRepository: nil pool")
	}
	var m presence.Membership
	err := r.pool.QueryRow(ctx, `
		SELECT room_id::text, user_key, display_name, avatar, color,
		       last_activity, is_afk, afk_since, manual_afk, is_host, joined_at
		FROM lounge.membership
		WHERE room_id = $1::uuid AND user_key = $2
	`, roomID, userKey).Scan(
		&m.RoomID, &m.UserKey, &m.DisplayName, &m.Avatar, &m.Color,
		&m.LastActivity, &m.IsAFK, &m.AFKSince, &m.ManualAFK, &m.IsHost, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, presence.ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PgMembershipRepository) ListRoomMemberships(ctx context.Context, roomID string) ([]presence.Membership, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMembershipRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT room_id::text, user_key, display_name, avatar, color,
		       last_activity, is_afk, afk_since, manual_afk, is_host, joined_at
		FROM lounge.membership
		WHERE room_id = $1::uuid
		ORDER BY joined_at, user_key
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []presence.Membership
	for rows.Next() {
		var m presence.Membership
		if err := rows.Scan(
			&m.RoomID, &m.UserKey, &m.DisplayName, &m.Avatar, &m.Color,
			&m.LastActivity, &m.IsAFK, &m.AFKSince, &m.ManualAFK, &m.IsHost, &m.JoinedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// TouchActivity never regresses last_activity. Clearing AFK and advancing
// the timestamp happen in one statement so a reader cannot observe one
// without the other.
func (r *PgMembershipRepository) TouchActivity(ctx context.Context, roomID, userKey string, at time.Time, clearAFK bool) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMembershipRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE lounge.membership
		SET last_activity = GREATEST(last_activity, $3),
		    is_afk        = CASE WHEN $4 THEN false ELSE is_afk END,
		    afk_since     = CASE WHEN $4 THEN NULL  ELSE afk_since END
		WHERE room_id = $1::uuid AND user_key = $2
	`, roomID, userKey, at, clearAFK)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return presence.ErrNotMember
	}
	return nil
}

func (r *PgMembershipRepository) SetManualAFK(ctx context.Context, roomID, userKey string, afk bool, at time.Time) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMembershipRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE lounge.membership
		SET manual_afk = $3,
		    is_afk     = $3,
		    afk_since  = CASE WHEN $3 THEN COALESCE(afk_since, $4) ELSE NULL END
		WHERE room_id = $1::uuid AND user_key = $2
	`, roomID, userKey, afk, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return presence.ErrNotMember
	}
	return nil
}

// RemoveMembership handles the explicit-leave path, which is the single
// owner of durable row deletion on the realtime side. Host transfer and
// empty-room cleanup share the transaction.
func (r *PgMembershipRepository) RemoveMembership(ctx context.Context, roomID, userKey string) (presence.LeaveResult, error) {
	var res presence.LeaveResult
	if r == nil || r.pool == nil {
		return res, errors.New("PgMembershipRepository: nil pool")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	// Serialize against concurrent joins, which also lock the room row.
	if ok, err := lockRoom(ctx, tx, roomID); err != nil {
		return res, err
	} else if !ok {
		// Room already gone; the membership cascaded away with it.
		return res, tx.Commit(ctx)
	}

	var wasHost bool
	err = tx.QueryRow(ctx, `
		DELETE FROM lounge.membership
		WHERE room_id = $1::uuid AND user_key = $2
		RETURNING is_host
	`, roomID, userKey).Scan(&wasHost)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already gone: the sweep or a duplicate leave won the race.
		return res, tx.Commit(ctx)
	}
	if err != nil {
		return res, err
	}
	res.Removed = true

	if err := reconcileRoom(ctx, tx, roomID, &res.NewHostKey, &res.RoomDeleted); err != nil {
		return presence.LeaveResult{}, err
	}
	return res, tx.Commit(ctx)
}

// ApplyRoomSweep applies one room's sweep plan in a single transaction.
// Every statement is guarded by the cutoffs computed against the snapshot
// the planner read, so rows touched since the snapshot are left alone.
func (r *PgMembershipRepository) ApplyRoomSweep(ctx context.Context, plan presence.RoomSweepPlan) (presence.SweepRoomResult, error) {
	var res presence.SweepRoomResult
	if r == nil || r.pool == nil {
		return res, errors.New("PgMembershipRepository: nil pool")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	// Take the room row lock before reading membership counts. A first join
	// holds this lock while inserting, so the empty-room check below cannot
	// observe a pre-join snapshot and then delete the room out from under a
	// membership that commits moments later.
	if ok, err := lockRoom(ctx, tx, plan.RoomID); err != nil {
		return res, err
	} else if !ok {
		// Room deleted since the plan was built; nothing left to sweep.
		return res, tx.Commit(ctx)
	}

	if len(plan.MarkAFK) > 0 {
		ct, err := tx.Exec(ctx, `
			UPDATE lounge.membership
			SET is_afk = true, afk_since = $3
			WHERE room_id = $1::uuid AND user_key = ANY($2)
			  AND is_afk = false AND last_activity <= $4
		`, plan.RoomID, plan.MarkAFK, plan.AFKSince, plan.AFKCutoff)
		if err != nil {
			return presence.SweepRoomResult{}, err
		}
		res.MarkedAFK = int(ct.RowsAffected())
	}

	if len(plan.ClearAFK) > 0 {
		_, err := tx.Exec(ctx, `
			UPDATE lounge.membership
			SET is_afk = false, afk_since = NULL
			WHERE room_id = $1::uuid AND user_key = ANY($2)
			  AND is_afk = true AND manual_afk = false AND last_activity > $3
		`, plan.RoomID, plan.ClearAFK, plan.AFKCutoff)
		if err != nil {
			return presence.SweepRoomResult{}, err
		}
	}

	for _, target := range plan.Evict {
		ct, err := tx.Exec(ctx, `
			DELETE FROM lounge.membership
			WHERE room_id = $1::uuid AND user_key = $2 AND last_activity <= $3
		`, plan.RoomID, target.UserKey, target.Cutoff)
		if err != nil {
			return presence.SweepRoomResult{}, err
		}
		res.Evicted += int(ct.RowsAffected())
	}

	var newHost string
	if err := reconcileRoom(ctx, tx, plan.RoomID, &newHost, &res.RoomDeleted); err != nil {
		return presence.SweepRoomResult{}, err
	}
	res.HostTransferred = newHost != ""

	return res, tx.Commit(ctx)
}

// lockRoom acquires the room row lock used to serialize structural changes
// with concurrent joins. Reports false when the room no longer exists.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID string) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM lounge.room WHERE id = $1::uuid FOR UPDATE`, roomID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// reconcileRoom restores the room invariant inside an open transaction:
// either the room is deleted because it has no members, or exactly one
// member holds is_host. Replacement hosts are picked by earliest joined_at
// with user_key as the deterministic tie-break.
func reconcileRoom(ctx context.Context, tx pgx.Tx, roomID string, newHostKey *string, roomDeleted *bool) error {
	var members, hosts int
	err := tx.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE is_host)
		FROM lounge.membership
		WHERE room_id = $1::uuid
	`, roomID).Scan(&members, &hosts)
	if err != nil {
		return err
	}

	if members == 0 {
		ct, err := tx.Exec(ctx, `DELETE FROM lounge.room WHERE id = $1::uuid`, roomID)
		if err != nil {
			return err
		}
		*roomDeleted = ct.RowsAffected() > 0
		return nil
	}

	if hosts > 0 {
		return nil
	}

	err = tx.QueryRow(ctx, `
		UPDATE lounge.membership
		SET is_host = true
		WHERE room_id = $1::uuid AND user_key = (
			SELECT user_key FROM lounge.membership
			WHERE room_id = $1::uuid
			ORDER BY joined_at, user_key
			LIMIT 1
		)
		RETURNING user_key
	`, roomID).Scan(newHostKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return presence.ErrNoHostCandidate
	}
	return err
}
