package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"casechat-sync/internal/api"
	"casechat-sync/internal/models"
	"casechat-sync/internal/observability"
	"casechat-sync/internal/resolver"
)

// ErrInvalidRecipient blocks a send whose recipient is unresolved or
// malformed. Raised before any network call.
var ErrInvalidRecipient = errors.New("invalid or unresolved recipient")

// ErrEmptyBody blocks a send with no content.
var ErrEmptyBody = errors.New("message body is empty")

// Sender is the subset of the REST client the pipeline needs.
type Sender interface {
	CreateMessage(ctx context.Context, caseID int64, recipientID, body string) (models.Message, error)
}

// SendPipeline performs the optimistic send: validate recipient, show the
// pending entry immediately, issue the create, then reconcile the
// confirmed message back through the merge rule.
type SendPipeline struct {
	store    *Store
	sender   Sender
	resolver *resolver.Resolver
	me       string
}

// NewSendPipeline wires the pipeline for one authenticated identity.
func NewSendPipeline(s *Store, sender Sender, res *resolver.Resolver, me string) *SendPipeline {
	return &SendPipeline{store: s, sender: sender, resolver: res, me: me}
}

// Send submits one message. On failure the optimistic entry is flagged
// failed and the error propagated; the pipeline never retries.
func (p *SendPipeline) Send(ctx context.Context, caseID int64, body string) (models.Message, error) {
	if body == "" {
		return models.Message{}, ErrEmptyBody
	}

	recipientID, err := p.resolver.Resolve(ctx, caseID, p.me)
	if err != nil {
		observability.IncSend("blocked")
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	if !resolver.IsParticipantID(recipientID) {
		observability.IncSend("blocked")
		return models.Message{}, ErrInvalidRecipient
	}

	pending := models.PendingSend{
		LocalID:     uuid.NewString(),
		CaseID:      caseID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   time.Now(),
	}
	p.store.AddPending(pending)

	msg, err := p.sender.CreateMessage(ctx, caseID, recipientID, body)
	if err != nil {
		p.store.FailPending(caseID, pending.LocalID)
		observability.IncSend("failed")
		var sendErr *api.SendError
		if errors.As(err, &sendErr) {
			return models.Message{}, err
		}
		return models.Message{}, &api.SendError{Err: err}
	}

	p.store.ConfirmPending(caseID, pending.LocalID, msg)
	observability.IncSend("ok")
	return msg, nil
}
