package engine

import (
	"sync"
	"time"

	"casechat-sync/internal/models"
)

// Session is one active conversation view of a case. Views are
// reference-counted: the room membership and the store's case state live
// until the last reference is released.
type Session struct {
	engine *Engine
	caseID int64
	refs   int

	mu       sync.Mutex
	joinAck  models.JoinAck
	degraded bool
	loading  bool
	typing   *time.Timer
}

// CaseID returns the case this session observes.
func (s *Session) CaseID() int64 {
	return s.caseID
}

// Release drops one reference. On the last release the room is left, the
// store's case state dropped, and push events for the case stop being
// processed. Safe on every exit path.
func (s *Session) Release() {
	e := s.engine

	e.mu.Lock()
	s.refs--
	last := s.refs <= 0
	if last {
		delete(e.sessions, s.caseID)
	}
	e.mu.Unlock()

	e.rooms.Leave(s.caseID)
	if last {
		s.StopTyping()
		e.store.Drop(s.caseID)
	}
}

// SessionStatus is the observable state of one conversation view.
type SessionStatus struct {
	CaseID     int64  `json:"caseId"`
	Connection string `json:"connection"`
	Room       string `json:"room,omitempty"`
	RoomSize   int    `json:"roomSize,omitempty"`
	Degraded   bool   `json:"degraded"`
	Loading    bool   `json:"loading"`
	Messages   int    `json:"messages"`
	Pending    int    `json:"pending"`
	Failed     int    `json:"failed"`
}

// Status snapshots the session for callers.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	ack := s.joinAck
	degraded := s.degraded
	loading := s.loading
	s.mu.Unlock()

	pending := s.engine.store.Pending(s.caseID)
	failed := 0
	for _, p := range pending {
		if p.Failed {
			failed++
		}
	}

	return SessionStatus{
		CaseID:     s.caseID,
		Connection: s.engine.conn.State().String(),
		Room:       ack.Room,
		RoomSize:   ack.RoomSize,
		Degraded:   degraded,
		Loading:    loading,
		Messages:   len(s.engine.store.Messages(s.caseID)),
		Pending:    len(pending),
		Failed:     failed,
	}
}

// Degraded reports whether the room membership lacks an acknowledgment.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// StartTyping arms the debounced typing signal. The indicator is not
// wired to any push event; the timer exists so the input surface owns a
// cancellable handle rather than a floating closure.
func (s *Session) StartTyping(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing != nil {
		s.typing.Stop()
	}
	s.typing = time.AfterFunc(d, func() {})
}

// StopTyping cancels the typing signal.
func (s *Session) StopTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typing != nil {
		s.typing.Stop()
		s.typing = nil
	}
}

func (s *Session) setJoin(ack models.JoinAck) {
	s.mu.Lock()
	s.joinAck = ack
	s.mu.Unlock()
}

func (s *Session) setDegraded(v bool) {
	s.mu.Lock()
	s.degraded = v
	s.mu.Unlock()
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
