package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"casechat-sync/internal/models"
)

// CaseAPI is the REST surface of the external message store and case
// service consumed by the sync engine.
type CaseAPI interface {
	ListMessages(ctx context.Context, caseID int64) ([]models.Message, error)
	CreateMessage(ctx context.Context, caseID int64, recipientID, body string) (models.Message, error)
	MarkRead(ctx context.Context, messageID int64) (models.Message, error)
	GetCase(ctx context.Context, caseID int64) (models.CaseParticipants, error)
}

// Client is the bearer-authenticated HTTP implementation of CaseAPI.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client for the given base URL and credential.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiEnvelope is the {success, data} wrapper every endpoint responds with.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ListMessages fetches the durable message list for a case. One-shot, no
// retry.
func (c *Client) ListMessages(ctx context.Context, caseID int64) ([]models.Message, error) {
	ctx, span := otel.Tracer("casechat-sync/api").Start(ctx, "api.list_messages")
	defer span.End()
	span.SetAttributes(attribute.Int64("case.id", caseID))

	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/cases/%d/messages", caseID), nil, &msgs); err != nil {
		return nil, asFetchError(err)
	}
	return msgs, nil
}

// CreateMessage posts a new message and returns the server-confirmed record.
func (c *Client) CreateMessage(ctx context.Context, caseID int64, recipientID, body string) (models.Message, error) {
	ctx, span := otel.Tracer("casechat-sync/api").Start(ctx, "api.create_message")
	defer span.End()
	span.SetAttributes(attribute.Int64("case.id", caseID))

	payload := map[string]string{"recipientId": recipientID, "message": body}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/cases/%d/messages", caseID), payload, &msg); err != nil {
		return models.Message{}, asSendError(err)
	}
	return msg, nil
}

// MarkRead flips a message's read flag on the server. Idempotent
// server-side.
func (c *Client) MarkRead(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/messages/%d/read", messageID), struct{}{}, &msg); err != nil {
		return models.Message{}, asFetchError(err)
	}
	return msg, nil
}

// GetCase fetches the participant record of a case.
func (c *Client) GetCase(ctx context.Context, caseID int64) (models.CaseParticipants, error) {
	var participants models.CaseParticipants
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/cases/%d", caseID), nil, &participants); err != nil {
		return models.CaseParticipants{}, asFetchError(err)
	}
	return participants, nil
}

// httpStatusError carries a non-2xx response through to the typed error
// constructors.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode, body: string(raw)}
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("request rejected: %s", envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func asFetchError(err error) error {
	if statusErr, ok := err.(*httpStatusError); ok {
		return &FetchError{Status: statusErr.status, Err: err}
	}
	return &FetchError{Err: err}
}

func asSendError(err error) error {
	if statusErr, ok := err.(*httpStatusError); ok {
		return &SendError{Status: statusErr.status, Err: err}
	}
	return &SendError{Err: err}
}
