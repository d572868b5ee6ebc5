package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"casechat-sync/internal/models"
	"casechat-sync/internal/observability"
)

// ErrJoinTimeout is the soft failure of a join whose acknowledgment did
// not arrive within the bounded wait. The membership stays registered;
// event delivery just cannot be assumed reliable until an ack shows up.
var ErrJoinTimeout = errors.New("room join acknowledgment timed out")

// ErrJoinRejected is returned when the server answers the join with an
// error payload.
var ErrJoinRejected = errors.New("room join rejected")

type membership struct {
	refs     int
	joinedAt time.Time
	acked    bool
	ack      models.JoinAck
}

// Rooms multiplexes per-case rooms over the shared connection. Memberships
// are caseID-keyed and reference-counted so a second viewer of the same
// case cannot drop a room the first one still needs.
type Rooms struct {
	conn       *Conn
	ackTimeout time.Duration

	mu      sync.Mutex
	members map[int64]*membership
	waiters map[int64][]chan models.JoinAck
}

// NewRooms builds the multiplexer for one connection.
func NewRooms(conn *Conn, ackTimeout time.Duration) *Rooms {
	if ackTimeout == 0 {
		ackTimeout = 5 * time.Second
	}
	return &Rooms{
		conn:       conn,
		ackTimeout: ackTimeout,
		members:    make(map[int64]*membership),
		waiters:    make(map[int64][]chan models.JoinAck),
	}
}

// Join subscribes to a case room and waits for the acknowledgment. Joining
// an already-joined case only increments the reference count; no second
// subscription is created.
func (r *Rooms) Join(ctx context.Context, caseID int64) (models.JoinAck, error) {
	r.mu.Lock()
	if m, ok := r.members[caseID]; ok {
		m.refs++
		ack, acked := m.ack, m.acked
		r.mu.Unlock()
		if acked {
			return ack, nil
		}
		return models.JoinAck{}, ErrJoinTimeout
	}

	r.members[caseID] = &membership{refs: 1, joinedAt: time.Now()}
	waiter := make(chan models.JoinAck, 1)
	r.waiters[caseID] = append(r.waiters[caseID], waiter)
	r.mu.Unlock()

	if err := r.sendJoin(caseID); err != nil {
		r.dropLocal(caseID)
		return models.JoinAck{}, err
	}

	timer := time.NewTimer(r.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-waiter:
		if ack.Error != "" {
			r.dropLocal(caseID)
			return ack, fmt.Errorf("%w: %s", ErrJoinRejected, ack.Error)
		}
		return ack, nil
	case <-timer.C:
		observability.IncJoinAckTimeout()
		log.Printf("room join ack timed out case_id=%d", caseID)
		return models.JoinAck{}, ErrJoinTimeout
	case <-ctx.Done():
		r.dropLocal(caseID)
		return models.JoinAck{}, ctx.Err()
	}
}

// Leave releases one reference to a case room. The leave frame is sent
// fire-and-forget once the last reference is gone; no acknowledgment is
// expected. Safe to call on every exit path.
func (r *Rooms) Leave(caseID int64) {
	r.mu.Lock()
	m, ok := r.members[caseID]
	if !ok {
		r.mu.Unlock()
		return
	}
	m.refs--
	last := m.refs <= 0
	if last {
		delete(r.members, caseID)
		delete(r.waiters, caseID)
	}
	r.mu.Unlock()

	if !last {
		return
	}
	env, err := models.NewEnvelope(models.EventLeaveCase, models.LeaveCase{CaseID: caseID})
	if err != nil {
		return
	}
	if err := r.conn.Send(env); err != nil {
		log.Printf("room leave send failed case_id=%d: %v", caseID, err)
	}
}

// HandleAck delivers a join acknowledgment received on the push channel.
func (r *Rooms) HandleAck(ack models.JoinAck) {
	r.mu.Lock()
	if m, ok := r.members[ack.CaseID]; ok && ack.Error == "" {
		m.acked = true
		m.ack = ack
	}
	waiters := r.waiters[ack.CaseID]
	delete(r.waiters, ack.CaseID)
	r.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- ack
	}
}

// RejoinAll re-sends join requests for every registered membership. Called
// after a reconnect; acks arrive asynchronously through HandleAck.
func (r *Rooms) RejoinAll() {
	r.mu.Lock()
	caseIDs := make([]int64, 0, len(r.members))
	for caseID, m := range r.members {
		m.acked = false
		caseIDs = append(caseIDs, caseID)
	}
	r.mu.Unlock()

	for _, caseID := range caseIDs {
		if err := r.sendJoin(caseID); err != nil {
			log.Printf("room rejoin send failed case_id=%d: %v", caseID, err)
		}
	}
}

// Joined reports whether a membership exists for the case.
func (r *Rooms) Joined(caseID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[caseID]
	return ok
}

// Acked reports whether the server has acknowledged the case room.
func (r *Rooms) Acked(caseID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[caseID]
	return ok && m.acked
}

func (r *Rooms) sendJoin(caseID int64) error {
	env, err := models.NewEnvelope(models.EventJoinCase, models.JoinCase{CaseID: caseID})
	if err != nil {
		return err
	}
	return r.conn.Send(env)
}

func (r *Rooms) dropLocal(caseID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[caseID]
	if !ok {
		return
	}
	m.refs--
	if m.refs <= 0 {
		delete(r.members, caseID)
		delete(r.waiters, caseID)
	}
}
