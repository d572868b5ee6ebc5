package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"casechat-sync/internal/api"
	"casechat-sync/internal/models"
)

type CaseAPIMock struct {
	mock.Mock
}

func (m *CaseAPIMock) ListMessages(ctx context.Context, caseID int64) ([]models.Message, error) {
	args := m.Called(ctx, caseID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *CaseAPIMock) CreateMessage(ctx context.Context, caseID int64, recipientID, body string) (models.Message, error) {
	args := m.Called(ctx, caseID, recipientID, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *CaseAPIMock) MarkRead(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *CaseAPIMock) GetCase(ctx context.Context, caseID int64) (models.CaseParticipants, error) {
	args := m.Called(ctx, caseID)
	var participants models.CaseParticipants
	if val := args.Get(0); val != nil {
		participants = val.(models.CaseParticipants)
	}
	return participants, args.Error(1)
}

var _ api.CaseAPI = (*CaseAPIMock)(nil)
