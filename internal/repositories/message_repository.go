package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"community-chat/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessageDeleted  = errors.New("message has been deleted")
	ErrNotAuthor       = errors.New("only the author may modify the message")
	ErrEmptyContent    = errors.New("message content must not be empty")
	ErrContentTooLong  = errors.New("message content exceeds 2000 characters")
)

// MessageRepository owns the append-only message log with its
// edit/soft-delete overlay.
type MessageRepository interface {
	Append(ctx context.Context, roomID, authorID, authorName, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	Edit(ctx context.Context, messageID, editorID, content string, moderator bool) (models.Message, error)
	SoftDelete(ctx context.Context, messageID, requesterID string, moderator bool) (models.Message, error)
	Restore(ctx context.Context, messageID string) (models.Message, error)
	History(ctx context.Context, roomID string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, room_id, author_id, author_name, content, created_at, edited_at, deleted_at`

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > models.MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// Append validates and stores a new message. Message ids are ULIDs, so
// the id tie-break agrees with created_at ordering.
func (r *MessageRepo) Append(ctx context.Context, roomID, authorID, authorName, content string) (models.Message, error) {
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		RoomID:     roomID,
		AuthorID:   authorID,
		AuthorName: authorName,
		Content:    content,
		CreatedAt:  now,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, author_id, author_name, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.RoomID, msg.AuthorID, msg.AuthorName, msg.Content, msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message without tombstoning.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Edit updates the content of a live message. Only the author (or a
// moderator) may edit; a soft-deleted message is no longer editable.
func (r *MessageRepo) Edit(ctx context.Context, messageID, editorID, content string, moderator bool) (models.Message, error) {
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}

	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Deleted() {
		return models.Message{}, ErrMessageDeleted
	}
	if msg.AuthorID != editorID && !moderator {
		return models.Message{}, ErrNotAuthor
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`UPDATE messages SET content = $1, edited_at = $2 WHERE id = $3 AND deleted_at IS NULL`,
		content, now, messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg.Content = content
	msg.EditedAt = &now
	return msg, nil
}

// SoftDelete marks a message deleted. createdAt and ordering never change;
// broadcasts and reads see a tombstone afterwards.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, requesterID string, moderator bool) (models.Message, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.Deleted() {
		return models.Message{}, ErrMessageDeleted
	}
	if msg.AuthorID != requesterID && !moderator {
		return models.Message{}, ErrNotAuthor
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, now, messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg.DeletedAt = &now
	return msg, nil
}

// Restore reverses a soft delete. Authorization (moderator override) is
// checked by the caller since it is a platform permission, not a message
// property.
func (r *MessageRepo) Restore(ctx context.Context, messageID string) (models.Message, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !msg.Deleted() {
		return msg, nil
	}

	_, err = r.db.ExecContext(ctx, `UPDATE messages SET deleted_at = NULL WHERE id = $1`, messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg.DeletedAt = nil
	return msg, nil
}

// History returns the most recent messages of a room, newest first, with
// deleted rows tombstoned.
func (r *MessageRepo) History(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE room_id = $1
         ORDER BY created_at DESC, id DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i] = msgs[i].Tombstoned()
	}
	return msgs, nil
}
