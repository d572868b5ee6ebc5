package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMessagesDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cases/7/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true,"data":[{"id":1,"caseId":7,"message":"hi"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	msgs, err := client.ListMessages(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Body)
}

func TestListMessagesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	_, err := client.ListMessages(context.Background(), 7)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestListMessagesRejectedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"nope"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	_, err := client.ListMessages(context.Background(), 7)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCreateMessagePayloadAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	_, err := client.CreateMessage(context.Background(), 7, "rid", "hi")

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, http.StatusForbidden, sendErr.Status)
}

func TestMarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/messages/5/read", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"id":5,"caseId":7,"isRead":true}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	msg, err := client.MarkRead(context.Background(), 5)

	require.NoError(t, err)
	assert.True(t, msg.IsRead)
}

func TestGetCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cases/7", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"id":7,"citizenId":"c","lawyerId":"l"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token")
	participants, err := client.GetCase(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, "c", participants.CitizenID)
	assert.Equal(t, "l", participants.LawyerID)
}
