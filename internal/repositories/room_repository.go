package repositories

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"community-chat/internal/models"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrWrongPassword = errors.New("wrong room password")
	ErrNotCreator    = errors.New("only the room creator may manage the invite code")
	ErrBadRoomName   = errors.New("room name must be 1-50 letters, digits, spaces, '_' or '-'")
	ErrBadPassword   = errors.New("room password must be at least 4 characters")
)

var roomNameRegex = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,50}$`)

const minPasswordLength = 4

// RoomRepository owns room records, invite codes and the durable
// private-room access history.
type RoomRepository interface {
	CreateRoom(ctx context.Context, creatorID, name string, isPrivate bool, password string) (models.Room, error)
	ListPublicRooms(ctx context.Context) ([]models.Room, error)
	ListPrivateRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	ResolveJoinTarget(ctx context.Context, identifier, password string) (models.Room, error)
	InviteCode(ctx context.Context, roomID, requesterID string) (string, error)
	RegenerateInviteCode(ctx context.Context, roomID, requesterID string) (string, error)
	RecordAccess(ctx context.Context, roomID, userID string) error
	HasAccess(ctx context.Context, roomID, userID string) (bool, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, name, is_private, password_hash, invite_code, creator_id, created_at`

// CreateRoom validates and persists a room. Private rooms receive an
// invite code and a durable access row for the creator.
func (r *RoomRepo) CreateRoom(ctx context.Context, creatorID, name string, isPrivate bool, password string) (models.Room, error) {
	if !roomNameRegex.MatchString(name) {
		return models.Room{}, ErrBadRoomName
	}

	var passwordHash *string
	if password != "" {
		if len(password) < minPasswordLength {
			return models.Room{}, ErrBadPassword
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return models.Room{}, err
		}
		hashStr := string(hashed)
		passwordHash = &hashStr
	}

	var inviteCode *string
	if isPrivate {
		code := newInviteCode()
		inviteCode = &code
	}

	room := models.Room{
		ID:           uuid.NewString(),
		Name:         name,
		IsPrivate:    isPrivate,
		PasswordHash: passwordHash,
		InviteCode:   inviteCode,
		CreatorID:    creatorID,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (id, name, is_private, password_hash, invite_code, creator_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, room.Name, room.IsPrivate, room.PasswordHash, room.InviteCode, room.CreatorID, room.CreatedAt); err != nil {
		return models.Room{}, err
	}

	if isPrivate {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO room_access (room_id, user_id) VALUES ($1, $2)`, room.ID, creatorID); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// ListPublicRooms returns all non-private rooms.
func (r *RoomRepo) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT `+roomColumns+` FROM rooms WHERE is_private = FALSE ORDER BY created_at ASC`)
	return rooms, err
}

// ListPrivateRoomsForUser returns private rooms the user created or has
// previously joined.
func (r *RoomRepo) ListPrivateRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT r.id, r.name, r.is_private, r.password_hash, r.invite_code, r.creator_id, r.created_at
         FROM rooms r INNER JOIN room_access ra ON ra.room_id = r.id
         WHERE r.is_private = TRUE AND ra.user_id = $1
         ORDER BY r.created_at ASC`, userID)
	return rooms, err
}

// ResolveJoinTarget resolves a join identifier to a room. Public rooms
// resolve by id or name; private rooms resolve only by invite code, so a
// raw private id behaves exactly like a nonexistent room.
func (r *RoomRepo) ResolveJoinTarget(ctx context.Context, identifier, password string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE invite_code = $1`, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.GetContext(ctx, &room,
			`SELECT `+roomColumns+` FROM rooms WHERE is_private = FALSE AND (id = $1 OR name = $1)
             ORDER BY created_at ASC LIMIT 1`, identifier)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}

	// Public rooms ignore passwords entirely.
	if room.IsPrivate && room.HasPassword() {
		if bcrypt.CompareHashAndPassword([]byte(*room.PasswordHash), []byte(password)) != nil {
			return models.Room{}, ErrWrongPassword
		}
	}
	return room, nil
}

// InviteCode returns the invite code to the room creator.
func (r *RoomRepo) InviteCode(ctx context.Context, roomID, requesterID string) (string, error) {
	room, err := r.getRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if room.CreatorID != requesterID {
		return "", ErrNotCreator
	}
	if room.InviteCode == nil {
		return "", ErrRoomNotFound
	}
	return *room.InviteCode, nil
}

// RegenerateInviteCode atomically replaces the invite code, invalidating
// the previous one. Creator only.
func (r *RoomRepo) RegenerateInviteCode(ctx context.Context, roomID, requesterID string) (string, error) {
	room, err := r.getRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if room.CreatorID != requesterID {
		return "", ErrNotCreator
	}
	if !room.IsPrivate {
		return "", ErrRoomNotFound
	}

	code := newInviteCode()
	res, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET invite_code = $1 WHERE id = $2 AND is_private = TRUE`, code, roomID)
	if err != nil {
		return "", err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", ErrRoomNotFound
	}
	return code, nil
}

// RecordAccess durably records that the user has joined a private room.
func (r *RoomRepo) RecordAccess(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_access (room_id, user_id) VALUES ($1, $2)
         ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID)
	return err
}

// HasAccess reports whether the user may read a room: public rooms are
// open, private rooms require a recorded access.
func (r *RoomRepo) HasAccess(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := r.getRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsPrivate {
		return true, nil
	}
	var exists bool
	err = r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM room_access WHERE room_id = $1 AND user_id = $2)`, roomID, userID)
	return exists, err
}

func (r *RoomRepo) getRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

func newInviteCode() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
