package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"casechat-sync/internal/api"
	"casechat-sync/internal/mocks"
	"casechat-sync/internal/models"
	"casechat-sync/internal/resolver"
)

const (
	citizenID = "11111111-1111-1111-1111-111111111111"
	lawyerID  = "22222222-2222-2222-2222-222222222222"
)

func newPipeline(apiMock *mocks.CaseAPIMock) (*SendPipeline, *Store) {
	s := New()
	res := resolver.New(apiMock, s)
	return NewSendPipeline(s, apiMock, res, citizenID), s
}

func TestSendSuccess(t *testing.T) {
	apiMock := new(mocks.CaseAPIMock)
	pipeline, s := newPipeline(apiMock)

	apiMock.On("GetCase", mock.Anything, int64(7)).
		Return(models.CaseParticipants{CaseID: 7, CitizenID: citizenID, LawyerID: lawyerID}, nil).Once()
	confirmed := models.Message{ID: 101, CaseID: 7, SenderID: citizenID, RecipientID: lawyerID, Body: "hi", CreatedAt: time.Now()}
	apiMock.On("CreateMessage", mock.Anything, int64(7), lawyerID, "hi").Return(confirmed, nil).Once()

	got, err := pipeline.Send(context.Background(), 7, "hi")

	require.NoError(t, err)
	assert.Equal(t, int64(101), got.ID)
	assert.Empty(t, s.Pending(7))
	require.Len(t, s.Messages(7), 1)
	apiMock.AssertExpectations(t)
}

func TestSendEmptyBody(t *testing.T) {
	apiMock := new(mocks.CaseAPIMock)
	pipeline, _ := newPipeline(apiMock)

	_, err := pipeline.Send(context.Background(), 7, "")

	require.ErrorIs(t, err, ErrEmptyBody)
	apiMock.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendBlockedWhenUnresolved(t *testing.T) {
	apiMock := new(mocks.CaseAPIMock)
	pipeline, s := newPipeline(apiMock)

	// No lawyer assigned and no history to fall back on.
	apiMock.On("GetCase", mock.Anything, int64(7)).
		Return(models.CaseParticipants{CaseID: 7, CitizenID: citizenID}, nil).Once()

	_, err := pipeline.Send(context.Background(), 7, "hi")

	require.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Empty(t, s.Pending(7))
	apiMock.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendFailureFlagsPending(t *testing.T) {
	apiMock := new(mocks.CaseAPIMock)
	pipeline, s := newPipeline(apiMock)

	apiMock.On("GetCase", mock.Anything, int64(7)).
		Return(models.CaseParticipants{CaseID: 7, CitizenID: citizenID, LawyerID: lawyerID}, nil).Once()
	apiMock.On("CreateMessage", mock.Anything, int64(7), lawyerID, "hi").
		Return(models.Message{}, errors.New("boom")).Once()

	_, err := pipeline.Send(context.Background(), 7, "hi")

	var sendErr *api.SendError
	require.ErrorAs(t, err, &sendErr)

	pending := s.Pending(7)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Failed)
	assert.Empty(t, s.Messages(7))
	apiMock.AssertExpectations(t)
}
