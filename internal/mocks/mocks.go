package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"community-chat/internal/identity"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, creatorID, name string, isPrivate bool, password string) (models.Room, error) {
	args := m.Called(ctx, creatorID, name, isPrivate, password)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) ListPrivateRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) ResolveJoinTarget(ctx context.Context, identifier, password string) (models.Room, error) {
	args := m.Called(ctx, identifier, password)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) InviteCode(ctx context.Context, roomID, requesterID string) (string, error) {
	args := m.Called(ctx, roomID, requesterID)
	return args.String(0), args.Error(1)
}

func (m *RoomRepositoryMock) RegenerateInviteCode(ctx context.Context, roomID, requesterID string) (string, error) {
	args := m.Called(ctx, roomID, requesterID)
	return args.String(0), args.Error(1)
}

func (m *RoomRepositoryMock) RecordAccess(ctx context.Context, roomID, userID string) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) HasAccess(ctx context.Context, roomID, userID string) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, roomID, authorID, authorName, content string) (models.Message, error) {
	args := m.Called(ctx, roomID, authorID, authorName, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID, editorID, content string, moderator bool) (models.Message, error) {
	args := m.Called(ctx, messageID, editorID, content, moderator)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID, requesterID string, moderator bool) (models.Message, error) {
	args := m.Called(ctx, messageID, requesterID, moderator)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Restore(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) History(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(token string) (identity.Identity, error) {
	args := m.Called(token)
	var ident identity.Identity
	if val := args.Get(0); val != nil {
		ident = val.(identity.Identity)
	}
	return ident, args.Error(1)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ identity.Verifier = (*VerifierMock)(nil)
