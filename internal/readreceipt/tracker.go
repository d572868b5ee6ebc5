package readreceipt

import (
	"context"
	"log"
	"sync"

	"casechat-sync/internal/models"
	"casechat-sync/internal/observability"
	"casechat-sync/internal/store"
)

// ReadMarker is the subset of the REST client the tracker needs.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID int64) (models.Message, error)
}

// Tracker issues exactly one mark-read request for every message addressed
// to the viewer that is still unread. The server call is idempotent;
// client-side the done and in-flight sets prevent re-submission.
type Tracker struct {
	api   ReadMarker
	store *store.Store
	me    string

	mu       sync.Mutex
	done     map[int64]struct{}
	inflight map[int64]struct{}
}

// New builds a tracker for the given viewer identity.
func New(api ReadMarker, s *store.Store, me string) *Tracker {
	return &Tracker{
		api:      api,
		store:    s,
		done:     make(map[int64]struct{}),
		inflight: make(map[int64]struct{}),
		me:       me,
	}
}

// Scan walks the current merged list of a case and marks every unread
// message addressed to the viewer. Runs on initial load and on every store
// update that may introduce new unread-to-me messages.
func (t *Tracker) Scan(ctx context.Context, caseID int64) {
	for _, msg := range t.store.Messages(caseID) {
		if msg.IsRead || msg.RecipientID != t.me {
			continue
		}
		if !t.claim(msg.ID) {
			continue
		}

		confirmed, err := t.api.MarkRead(ctx, msg.ID)
		if err != nil {
			// Not read and no longer in flight; a later scan may retry.
			t.release(msg.ID)
			log.Printf("mark read failed message_id=%d: %v", msg.ID, err)
			continue
		}

		t.finish(msg.ID)
		observability.IncReadReceipt()
		t.store.MarkRead(caseID, confirmed.ID)
	}
}

// Observed records a read confirmation that arrived by push, so the
// tracker never issues a request for a message the server already knows
// is read.
func (t *Tracker) Observed(messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[messageID] = struct{}{}
}

func (t *Tracker) claim(messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.done[messageID]; ok {
		return false
	}
	if _, ok := t.inflight[messageID]; ok {
		return false
	}
	t.inflight[messageID] = struct{}{}
	return true
}

func (t *Tracker) release(messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, messageID)
}

func (t *Tracker) finish(messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, messageID)
	t.done[messageID] = struct{}{}
}
