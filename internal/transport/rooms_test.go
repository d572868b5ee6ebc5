package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casechat-sync/internal/models"
)

// roomServer acknowledges joins and counts join/leave frames per case.
type roomServer struct {
	t    *testing.T
	ack  bool
	mu   sync.Mutex
	join map[int64]int
	left map[int64]int
}

func newRoomServer(t *testing.T, ack bool) (*roomServer, *httptest.Server) {
	rs := &roomServer{t: t, ack: ack, join: map[int64]int{}, left: map[int64]int{}}
	srv := httptest.NewServer(http.HandlerFunc(rs.handle))
	t.Cleanup(srv.Close)
	return rs, srv
}

func (rs *roomServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	for {
		var env models.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		switch env.Type {
		case models.EventJoinCase:
			var join models.JoinCase
			if err := env.Decode(&join); err != nil {
				continue
			}
			rs.mu.Lock()
			rs.join[join.CaseID]++
			rs.mu.Unlock()
			if rs.ack {
				ack, _ := models.NewEnvelope(models.EventJoinedCase,
					models.JoinAck{CaseID: join.CaseID, Room: "case:7", RoomSize: 2})
				_ = ws.WriteJSON(ack)
			}
		case models.EventLeaveCase:
			var leave models.LeaveCase
			if err := env.Decode(&leave); err != nil {
				continue
			}
			rs.mu.Lock()
			rs.left[leave.CaseID]++
			rs.mu.Unlock()
		}
	}
}

func (rs *roomServer) joins(caseID int64) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.join[caseID]
}

func (rs *roomServer) leaves(caseID int64) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.left[caseID]
}

func dialRooms(t *testing.T, srv *httptest.Server, ackTimeout time.Duration) (*Conn, *Rooms) {
	conn, err := Dial(context.Background(), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	rooms := NewRooms(conn, ackTimeout)
	conn.SetEventHandler(func(env *models.Envelope) {
		if env.Type == models.EventJoinedCase {
			var ack models.JoinAck
			if err := env.Decode(&ack); err == nil {
				rooms.HandleAck(ack)
			}
		}
	})
	return conn, rooms
}

func TestJoinAckRoundtrip(t *testing.T) {
	_, srv := newRoomServer(t, true)
	_, rooms := dialRooms(t, srv, 2*time.Second)

	ack, err := rooms.Join(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, "case:7", ack.Room)
	assert.Equal(t, 2, ack.RoomSize)
	assert.True(t, rooms.Acked(7))
}

func TestJoinTimeoutKeepsMembership(t *testing.T) {
	_, srv := newRoomServer(t, false)
	_, rooms := dialRooms(t, srv, 50*time.Millisecond)

	_, err := rooms.Join(context.Background(), 7)

	require.ErrorIs(t, err, ErrJoinTimeout)
	assert.True(t, rooms.Joined(7))
	assert.False(t, rooms.Acked(7))
}

func TestLateAckAfterTimeout(t *testing.T) {
	_, srv := newRoomServer(t, false)
	_, rooms := dialRooms(t, srv, 50*time.Millisecond)

	_, err := rooms.Join(context.Background(), 7)
	require.ErrorIs(t, err, ErrJoinTimeout)

	rooms.HandleAck(models.JoinAck{CaseID: 7, Room: "case:7", RoomSize: 1})
	assert.True(t, rooms.Acked(7))
}

func TestDoubleJoinSingleSubscription(t *testing.T) {
	rs, srv := newRoomServer(t, true)
	_, rooms := dialRooms(t, srv, 2*time.Second)

	_, err := rooms.Join(context.Background(), 7)
	require.NoError(t, err)
	ack, err := rooms.Join(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "case:7", ack.Room)

	assert.Equal(t, 1, rs.joins(7))
}

func TestLeaveIsReferenceCounted(t *testing.T) {
	rs, srv := newRoomServer(t, true)
	_, rooms := dialRooms(t, srv, 2*time.Second)

	_, err := rooms.Join(context.Background(), 7)
	require.NoError(t, err)
	_, err = rooms.Join(context.Background(), 7)
	require.NoError(t, err)

	rooms.Leave(7)
	assert.True(t, rooms.Joined(7))
	assert.Equal(t, 0, rs.leaves(7))

	rooms.Leave(7)
	assert.False(t, rooms.Joined(7))
	require.Eventually(t, func() bool {
		return rs.leaves(7) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJoinRejected(t *testing.T) {
	_, srv := newRoomServer(t, false)
	conn, err := Dial(context.Background(), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	rooms := NewRooms(conn, 2*time.Second)

	// Deliver the rejection directly; the silent server never acks.
	go func() {
		time.Sleep(20 * time.Millisecond)
		rooms.HandleAck(models.JoinAck{CaseID: 7, Error: "forbidden"})
	}()

	_, err = rooms.Join(context.Background(), 7)
	require.ErrorIs(t, err, ErrJoinRejected)
	assert.False(t, rooms.Joined(7))
}

func TestRejoinAllResendsJoins(t *testing.T) {
	rs, srv := newRoomServer(t, true)
	_, rooms := dialRooms(t, srv, 2*time.Second)

	_, err := rooms.Join(context.Background(), 7)
	require.NoError(t, err)

	rooms.RejoinAll()

	require.Eventually(t, func() bool {
		return rs.joins(7) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return rooms.Acked(7)
	}, 2*time.Second, 10*time.Millisecond)
}
