package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casechat-sync/internal/models"
)

func msg(id int64, caseID int64, createdAt time.Time) models.Message {
	return models.Message{
		ID:          id,
		CaseID:      caseID,
		SenderID:    "11111111-1111-1111-1111-111111111111",
		RecipientID: "22222222-2222-2222-2222-222222222222",
		Body:        "hello",
		CreatedAt:   createdAt,
	}
}

func TestApplyDeduplicatesAcrossSources(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.True(t, s.Apply(SourceHistory, msg(1, 7, base)))
	require.False(t, s.Apply(SourcePush, msg(1, 7, base)))
	require.False(t, s.Apply(SourceSend, msg(1, 7, base)))

	assert.Len(t, s.Messages(7), 1)
}

func TestApplyOrderIsInterleavingIndependent(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []models.Message{
		msg(1, 7, base),
		msg(2, 7, base.Add(time.Minute)),
		msg(3, 7, base.Add(2*time.Minute)),
	}

	forward := New()
	for _, m := range records {
		forward.Apply(SourceHistory, m)
	}

	reversed := New()
	for i := len(records) - 1; i >= 0; i-- {
		reversed.Apply(SourcePush, records[i])
	}

	assert.Equal(t, forward.Messages(7), reversed.Messages(7))
	for i, m := range forward.Messages(7) {
		assert.Equal(t, int64(i+1), m.ID)
	}
}

func TestApplyBreaksCreatedAtTiesByID(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Apply(SourcePush, msg(5, 7, base))
	s.Apply(SourcePush, msg(3, 7, base))

	got := s.Messages(7)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(5), got[1].ID)
}

func TestApplyHistoryReturnsOnlyNewRecords(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Apply(SourcePush, msg(2, 7, base.Add(time.Minute)))

	added := s.ApplyHistory(7, []models.Message{
		msg(1, 7, base),
		msg(2, 7, base.Add(time.Minute)),
		msg(3, 7, base.Add(2*time.Minute)),
	})

	assert.Equal(t, 2, added)
	assert.Len(t, s.Messages(7), 3)
}

func TestApplyHistoryFillsMissingCaseID(t *testing.T) {
	s := New()
	record := msg(1, 0, time.Now())

	added := s.ApplyHistory(9, []models.Message{record})

	require.Equal(t, 1, added)
	got := s.Messages(9)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].CaseID)
}

func TestReadFlagIsMonotonic(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Apply(SourceHistory, msg(1, 7, base))

	assert.True(t, s.MarkRead(7, 1))
	assert.False(t, s.MarkRead(7, 1))

	// A duplicate carrying isRead=false must not clear the flag.
	unread := msg(1, 7, base)
	unread.IsRead = false
	s.Apply(SourcePush, unread)
	assert.True(t, s.Messages(7)[0].IsRead)
}

func TestDuplicateAbsorbsReadFlag(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.Apply(SourceHistory, msg(1, 7, base))

	read := msg(1, 7, base)
	read.IsRead = true
	require.False(t, s.Apply(SourcePush, read))

	assert.True(t, s.Messages(7)[0].IsRead)
}

func TestMarkReadUnknownMessage(t *testing.T) {
	s := New()
	assert.False(t, s.MarkRead(7, 42))
}

func TestPendingLifecycle(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.AddPending(models.PendingSend{LocalID: "local-1", CaseID: 7, Body: "hi", CreatedAt: base})
	require.Len(t, s.Pending(7), 1)

	confirmed := msg(10, 7, base)
	s.ConfirmPending(7, "local-1", confirmed)

	assert.Empty(t, s.Pending(7))
	require.Len(t, s.Messages(7), 1)
	assert.Equal(t, int64(10), s.Messages(7)[0].ID)
}

func TestConfirmPendingAfterEchoedPush(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.AddPending(models.PendingSend{LocalID: "local-1", CaseID: 7, Body: "hi", CreatedAt: base})

	// The room echo of our own send can arrive before the create response.
	echoed := msg(10, 7, base)
	require.True(t, s.Apply(SourcePush, echoed))

	s.ConfirmPending(7, "local-1", echoed)

	assert.Empty(t, s.Pending(7))
	assert.Len(t, s.Messages(7), 1)
}

func TestFailPendingKeepsEntryFlagged(t *testing.T) {
	s := New()

	s.AddPending(models.PendingSend{LocalID: "local-1", CaseID: 7, Body: "hi"})
	s.FailPending(7, "local-1")

	pending := s.Pending(7)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Failed)
}

func TestDayGroups(t *testing.T) {
	s := New()
	day1 := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 0, 10, 0, 0, time.UTC)

	s.Apply(SourceHistory, msg(1, 7, day1))
	s.Apply(SourceHistory, msg(2, 7, day1.Add(5*time.Minute)))
	s.Apply(SourceHistory, msg(3, 7, day2))

	groups := s.DayGroups(7)
	require.Len(t, groups, 2)
	assert.Equal(t, "2026-03-10", groups[0].Date)
	assert.Len(t, groups[0].Messages, 2)
	assert.Equal(t, "2026-03-11", groups[1].Date)
	assert.Len(t, groups[1].Messages, 1)
}

func TestDropReleasesCaseState(t *testing.T) {
	s := New()
	s.Apply(SourceHistory, msg(1, 7, time.Now()))
	s.AddPending(models.PendingSend{LocalID: "local-1", CaseID: 7})

	s.Drop(7)

	assert.Empty(t, s.Messages(7))
	assert.Empty(t, s.Pending(7))
}
