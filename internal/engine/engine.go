package engine

import (
	"context"
	"errors"
	"log"
	"sync"

	"go.opentelemetry.io/otel"

	"casechat-sync/internal/api"
	"casechat-sync/internal/cache"
	"casechat-sync/internal/models"
	"casechat-sync/internal/observability"
	"casechat-sync/internal/readreceipt"
	"casechat-sync/internal/store"
	"casechat-sync/internal/telemetry"
	"casechat-sync/internal/transport"
)

// Engine coordinates the sync of every watched case conversation: room
// membership, history loads, push-event routing, read receipts, and the
// snapshot cache. All collaborators are injected; the engine owns no
// global state.
type Engine struct {
	conn     *transport.Conn
	rooms    *transport.Rooms
	api      api.CaseAPI
	store    *store.Store
	pipeline *store.SendPipeline
	tracker  *readreceipt.Tracker
	snapshot cache.Snapshot
	audit    *telemetry.AuditEmitter

	mu       sync.Mutex
	sessions map[int64]*Session
}

// Deps carries the engine's collaborators.
type Deps struct {
	Conn     *transport.Conn
	Rooms    *transport.Rooms
	API      api.CaseAPI
	Store    *store.Store
	Pipeline *store.SendPipeline
	Tracker  *readreceipt.Tracker
	Snapshot cache.Snapshot
	Audit    *telemetry.AuditEmitter
}

// New wires the engine into the connection's event and reconnect hooks.
func New(deps Deps) *Engine {
	e := &Engine{
		conn:     deps.Conn,
		rooms:    deps.Rooms,
		api:      deps.API,
		store:    deps.Store,
		pipeline: deps.Pipeline,
		tracker:  deps.Tracker,
		snapshot: deps.Snapshot,
		audit:    deps.Audit,
		sessions: make(map[int64]*Session),
	}
	e.conn.SetEventHandler(e.handleEvent)
	e.conn.SetReconnectHandler(e.handleReconnect)
	return e
}

// Watch activates (or re-references) the conversation view of a case:
// join the room, load history, start receipt tracking. A history load
// failure tears the membership back down and is returned to the caller.
func (e *Engine) Watch(ctx context.Context, caseID int64) (*Session, error) {
	e.mu.Lock()
	if s, ok := e.sessions[caseID]; ok {
		s.refs++
		e.mu.Unlock()
		// Bump the room refcount symmetrically with Release.
		if _, err := e.rooms.Join(ctx, caseID); err != nil && !errors.Is(err, transport.ErrJoinTimeout) {
			log.Printf("room rejoin for existing session failed case_id=%d: %v", caseID, err)
		}
		return s, nil
	}
	s := &Session{engine: e, caseID: caseID, refs: 1, loading: true}
	e.sessions[caseID] = s
	e.mu.Unlock()

	ack, err := e.rooms.Join(ctx, caseID)
	switch {
	case err == nil:
		s.setJoin(ack)
	case errors.Is(err, transport.ErrJoinTimeout):
		// Soft: membership is registered, delivery just unconfirmed.
		s.setDegraded(true)
	default:
		e.dropSession(caseID)
		return nil, err
	}

	if err := e.loadHistory(ctx, caseID); err != nil {
		e.rooms.Leave(caseID)
		e.dropSession(caseID)
		return nil, err
	}
	s.setLoading(false)

	go e.tracker.Scan(context.Background(), caseID)
	e.audit.Emit(ctx, "info", "case_watch", "conversation view activated", &caseID)
	return s, nil
}

// Session returns the active session for a case, if any.
func (e *Engine) Session(caseID int64) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[caseID]
	return s, ok
}

// Unwatch releases one reference to a case view. Reports whether a
// session existed.
func (e *Engine) Unwatch(caseID int64) bool {
	s, ok := e.Session(caseID)
	if !ok {
		return false
	}
	s.Release()
	return true
}

// Send submits a message through the optimistic pipeline.
func (e *Engine) Send(ctx context.Context, caseID int64, body string) (models.Message, error) {
	return e.pipeline.Send(ctx, caseID, body)
}

// Messages returns the reconciled list for a case.
func (e *Engine) Messages(caseID int64) []models.Message {
	return e.store.Messages(caseID)
}

// DayGroups returns the reconciled list partitioned by calendar day.
func (e *Engine) DayGroups(caseID int64) []store.DayGroup {
	return e.store.DayGroups(caseID)
}

// Pending returns the optimistic entries for a case.
func (e *Engine) Pending(caseID int64) []models.PendingSend {
	return e.store.Pending(caseID)
}

// CaseStatus reports the per-case view status, if the case is watched.
func (e *Engine) CaseStatus(caseID int64) (SessionStatus, bool) {
	s, ok := e.Session(caseID)
	if !ok {
		return SessionStatus{}, false
	}
	return s.Status(), true
}

// Status describes the engine for the daemon status endpoint.
type Status struct {
	Connection   string  `json:"connection"`
	WatchedCases []int64 `json:"watchedCases"`
}

// Status reports the connection state and watched cases.
func (e *Engine) Status() Status {
	e.mu.Lock()
	cases := make([]int64, 0, len(e.sessions))
	for caseID := range e.sessions {
		cases = append(cases, caseID)
	}
	e.mu.Unlock()
	return Status{Connection: e.conn.State().String(), WatchedCases: cases}
}

// Close tears down the shared connection; room memberships go with it.
func (e *Engine) Close() error {
	return e.conn.Close()
}

func (e *Engine) loadHistory(ctx context.Context, caseID int64) error {
	ctx, span := otel.Tracer("casechat-sync/engine").Start(ctx, "engine.load_history")
	defer span.End()

	// Warm from the local snapshot so a restarted daemon has something to
	// render; the authoritative fetch follows and the merge rule dedups.
	if cached, err := e.snapshot.CaseMessages(ctx, caseID); err == nil {
		for _, msg := range cached {
			e.store.Apply(store.SourceCache, msg)
		}
	}

	msgs, err := e.api.ListMessages(ctx, caseID)
	if err != nil {
		observability.IncHistoryLoad("error")
		return err
	}
	observability.IncHistoryLoad("ok")

	e.store.ApplyHistory(caseID, msgs)
	if err := e.snapshot.UpsertMessages(ctx, msgs); err != nil {
		log.Printf("snapshot upsert failed case_id=%d: %v", caseID, err)
	}
	return nil
}

func (e *Engine) dropSession(caseID int64) {
	e.mu.Lock()
	delete(e.sessions, caseID)
	e.mu.Unlock()
}
