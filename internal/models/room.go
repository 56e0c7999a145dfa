package models

import "time"

// Room represents a chat room. Private rooms carry an invite code and may
// additionally be password protected; public rooms carry neither.
type Room struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	IsPrivate    bool      `db:"is_private" json:"is_private"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	InviteCode   *string   `db:"invite_code" json:"-"`
	CreatorID    string    `db:"creator_id" json:"creator_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// HasPassword reports whether joining requires a password.
func (r Room) HasPassword() bool {
	return r.PasswordHash != nil && *r.PasswordHash != ""
}

// Summary returns the client-facing view of the room. Invite codes and
// password hashes never leave the server through this path.
func (r Room) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		IsPrivate:   r.IsPrivate,
		HasPassword: r.HasPassword(),
		CreatorID:   r.CreatorID,
		CreatedAt:   r.CreatedAt,
	}
}

// RoomSummary is the wire representation of a room.
type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsPrivate   bool      `json:"is_private"`
	HasPassword bool      `json:"has_password"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PresenceUser is one entry of a room presence snapshot.
type PresenceUser struct {
	Username string `json:"username"`
	Active   bool   `json:"active"`
}
