package models

import "time"

// MaxContentLength is the longest message content accepted.
const MaxContentLength = 2000

// Tombstone replaces the content of a soft-deleted message on every read
// and broadcast.
const Tombstone = "[deleted]"

// Message represents a chat message. Content is opaque text; it may carry
// a file attachment tag or a bare URL, neither of which the server
// interprets.
type Message struct {
	ID         string     `db:"id" json:"id"`
	RoomID     string     `db:"room_id" json:"room_id"`
	AuthorID   string     `db:"author_id" json:"author_id"`
	AuthorName string     `db:"author_name" json:"author_name"`
	Content    string     `db:"content" json:"content"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	EditedAt   *time.Time `db:"edited_at" json:"edited_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at"`
}

// Deleted reports whether the message has been soft-deleted.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Tombstoned returns the message with its content masked when it has been
// soft-deleted. Id, author and timestamps stay addressable.
func (m Message) Tombstoned() Message {
	if m.Deleted() {
		m.Content = Tombstone
	}
	return m
}
