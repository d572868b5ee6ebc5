package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"casechat-sync/internal/models"
)

// ErrUnresolved means the counterparty of a case cannot be determined yet,
// typically because no lawyer has been assigned. It is a state, not a
// fault: callers disable sending instead of erroring out.
var ErrUnresolved = errors.New("case counterparty unresolved")

// CaseFetcher is the authoritative source of a case's participant record.
type CaseFetcher interface {
	GetCase(ctx context.Context, caseID int64) (models.CaseParticipants, error)
}

// HistorySource exposes already-merged messages for fallback derivation.
type HistorySource interface {
	Messages(caseID int64) []models.Message
}

// Resolver derives the counterparty identity of a case for a given viewer.
// Authoritative resolution goes through the case service and is cached per
// case; inspecting prior messages is a fallback only, used when that fetch
// fails, and never overrides an authoritative result.
type Resolver struct {
	api     CaseFetcher
	history HistorySource

	mu    sync.Mutex
	cache map[int64]string
}

// New builds a Resolver. history may be nil; the fallback is then skipped.
func New(api CaseFetcher, history HistorySource) *Resolver {
	return &Resolver{
		api:     api,
		history: history,
		cache:   make(map[int64]string),
	}
}

// Resolve returns the counterparty identity for the viewer, or
// ErrUnresolved when it cannot be determined. Every returned identity has
// passed the well-formedness check.
func (r *Resolver) Resolve(ctx context.Context, caseID int64, me string) (string, error) {
	r.mu.Lock()
	if cached, ok := r.cache[caseID]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	participants, err := r.api.GetCase(ctx, caseID)
	if err == nil {
		recipient := participants.Counterparty(me)
		if !IsParticipantID(recipient) {
			return "", ErrUnresolved
		}
		r.mu.Lock()
		r.cache[caseID] = recipient
		r.mu.Unlock()
		return recipient, nil
	}

	// Authoritative fetch unavailable: best-effort derivation from history.
	if recipient, ok := r.fromHistory(caseID, me); ok {
		return recipient, nil
	}
	return "", fmt.Errorf("%w: case fetch failed: %v", ErrUnresolved, err)
}

// Invalidate clears the cached resolution for a case, e.g. after a lawyer
// assignment changes.
func (r *Resolver) Invalidate(caseID int64) {
	r.mu.Lock()
	delete(r.cache, caseID)
	r.mu.Unlock()
}

func (r *Resolver) fromHistory(caseID int64, me string) (string, bool) {
	if r.history == nil {
		return "", false
	}
	for _, msg := range r.history.Messages(caseID) {
		if msg.SenderID != me && IsParticipantID(msg.SenderID) {
			return msg.SenderID, true
		}
		if msg.RecipientID != me && IsParticipantID(msg.RecipientID) {
			return msg.RecipientID, true
		}
	}
	return "", false
}

// IsParticipantID reports whether s is a well-formed participant identity.
// Participant identities are UUIDs; anything else is unusable as a send
// target.
func IsParticipantID(s string) bool {
	if s == "" {
		return false
	}
	return uuid.Validate(s) == nil
}
