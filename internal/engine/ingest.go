package engine

import (
	"context"
	"log"

	"casechat-sync/internal/models"
	"casechat-sync/internal/store"
)

// handleEvent routes one decoded push frame. Events arrive in arbitrary
// order relative to REST responses; routing performs no business logic
// beyond dispatch by type and case, and never blocks the read pump.
func (e *Engine) handleEvent(env *models.Envelope) {
	switch env.Type {
	case models.EventJoinedCase:
		var ack models.JoinAck
		if err := env.Decode(&ack); err != nil {
			log.Printf("push channel: %v", err)
			return
		}
		e.rooms.HandleAck(ack)
		if s, ok := e.Session(ack.CaseID); ok && ack.Error == "" {
			s.setJoin(ack)
			s.setDegraded(false)
		}

	case models.EventNewMessage:
		var msg models.Message
		if err := env.Decode(&msg); err != nil {
			log.Printf("push channel: %v", err)
			return
		}
		e.ingestMessage(msg)

	case models.EventMessageRead:
		var read models.MessageRead
		if err := env.Decode(&read); err != nil {
			log.Printf("push channel: %v", err)
			return
		}
		e.ingestRead(read)

	case models.EventLeftCase:
		// Leave is fire-and-forget; the confirmation carries nothing we track.

	case models.EventError:
		var evt models.ErrorEvent
		if err := env.Decode(&evt); err != nil {
			log.Printf("push channel: %v", err)
			return
		}
		log.Printf("push channel server error code=%s message=%q", evt.Code, evt.Message)

	default:
		log.Printf("push channel ignored unknown event type=%s", env.Type)
	}
}

func (e *Engine) ingestMessage(msg models.Message) {
	if _, ok := e.Session(msg.CaseID); !ok {
		// Late push for a case nobody observes anymore; the merge rule
		// makes ignoring it safe.
		return
	}
	e.store.Apply(store.SourcePush, msg)

	// Receipts and snapshot writes suspend; keep them off the read pump.
	go func() {
		ctx := context.Background()
		if err := e.snapshot.UpsertMessages(ctx, []models.Message{msg}); err != nil {
			log.Printf("snapshot upsert failed message_id=%d: %v", msg.ID, err)
		}
		e.tracker.Scan(ctx, msg.CaseID)
	}()
}

func (e *Engine) ingestRead(read models.MessageRead) {
	if _, ok := e.Session(read.CaseID); !ok {
		return
	}
	e.tracker.Observed(read.ID)
	e.store.MarkRead(read.CaseID, read.ID)

	go func() {
		if err := e.snapshot.MarkRead(context.Background(), read.ID); err != nil {
			log.Printf("snapshot mark read failed message_id=%d: %v", read.ID, err)
		}
	}()
}

// handleReconnect restores every membership and refreshes history after
// the transport came back. The merge rule guarantees the re-fetch cannot
// duplicate messages already rendered from pre-drop pushes.
func (e *Engine) handleReconnect() {
	e.rooms.RejoinAll()

	e.mu.Lock()
	caseIDs := make([]int64, 0, len(e.sessions))
	for caseID := range e.sessions {
		caseIDs = append(caseIDs, caseID)
	}
	e.mu.Unlock()

	for _, caseID := range caseIDs {
		caseID := caseID
		go func() {
			ctx := context.Background()
			if err := e.loadHistory(ctx, caseID); err != nil {
				log.Printf("history refresh after reconnect failed case_id=%d: %v", caseID, err)
				return
			}
			e.tracker.Scan(ctx, caseID)
		}()
	}

	e.audit.Emit(context.Background(), "warn", "reconnected", "push channel reconnected, rooms rejoined", nil)
}
