package store

import (
	"sort"
	"sync"

	"casechat-sync/internal/models"
	"casechat-sync/internal/observability"
)

// Merge sources, used for metrics and logging only.
const (
	SourceHistory = "history"
	SourcePush    = "push"
	SourceSend    = "send"
	SourceCache   = "cache"
)

// Store reconciles the three per-case message sources (history fetch, push
// events, local sends) into one ordered, de-duplicated list. All mutation
// funnels through the id-keyed insert-or-ignore rule, so any interleaving
// of sources yields the same set.
type Store struct {
	mu    sync.Mutex
	cases map[int64]*caseSet
}

type caseSet struct {
	byID    map[int64]struct{}
	msgs    []models.Message
	pending []models.PendingSend
}

// New creates an empty store.
func New() *Store {
	return &Store{cases: make(map[int64]*caseSet)}
}

// Apply merges one incoming record. A record whose id is already present
// is discarded, except that a true read flag is absorbed (IsRead is
// monotonic). Returns whether the record was inserted.
func (s *Store) Apply(source string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(source, msg)
}

// ApplyHistory merges a full history result and returns how many records
// were new. Re-fetching after a reconnect therefore never duplicates
// messages already rendered from pre-drop pushes.
func (s *Store) ApplyHistory(caseID int64, msgs []models.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, msg := range msgs {
		if msg.CaseID == 0 {
			msg.CaseID = caseID
		}
		if s.applyLocked(SourceHistory, msg) {
			added++
		}
	}
	return added
}

func (s *Store) applyLocked(source string, msg models.Message) bool {
	cs := s.caseLocked(msg.CaseID)
	if _, exists := cs.byID[msg.ID]; exists {
		observability.IncMergeDuplicate(source)
		if msg.IsRead {
			s.markReadLocked(cs, msg.ID)
		}
		return false
	}

	cs.byID[msg.ID] = struct{}{}
	cs.msgs = append(cs.msgs, msg)
	// A stale push may carry an earlier createdAt than anything rendered;
	// re-sorting positions it correctly instead of appending blindly.
	sort.Slice(cs.msgs, func(i, j int) bool {
		return cs.msgs[i].Before(cs.msgs[j])
	})
	observability.IncMergeApplied(source)
	return true
}

// MarkRead flips a message's read flag, false to true only. Returns
// whether the flag changed.
func (s *Store) MarkRead(caseID, messageID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.cases[caseID]
	if !ok {
		return false
	}
	return s.markReadLocked(cs, messageID)
}

func (s *Store) markReadLocked(cs *caseSet, messageID int64) bool {
	for i := range cs.msgs {
		if cs.msgs[i].ID == messageID {
			if cs.msgs[i].IsRead {
				return false
			}
			cs.msgs[i].IsRead = true
			return true
		}
	}
	return false
}

// Messages returns the merged, ordered list for a case.
func (s *Store) Messages(caseID int64) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.cases[caseID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(cs.msgs))
	copy(out, cs.msgs)
	return out
}

// DayGroup is one calendar-day bucket of the merged list. Buckets are
// derived on read, never stored.
type DayGroup struct {
	Date     string           `json:"date"`
	Messages []models.Message `json:"messages"`
}

// DayGroups partitions the merged list into ascending calendar-day
// buckets by createdAt.
func (s *Store) DayGroups(caseID int64) []DayGroup {
	msgs := s.Messages(caseID)

	var groups []DayGroup
	for _, msg := range msgs {
		day := msg.CreatedAt.Format("2006-01-02")
		if len(groups) == 0 || groups[len(groups)-1].Date != day {
			groups = append(groups, DayGroup{Date: day})
		}
		last := len(groups) - 1
		groups[last].Messages = append(groups[last].Messages, msg)
	}
	return groups
}

// AddPending registers an optimistic send so it is visible before the
// create request resolves.
func (s *Store) AddPending(p models.PendingSend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.caseLocked(p.CaseID)
	cs.pending = append(cs.pending, p)
}

// ConfirmPending replaces an optimistic entry with the server-confirmed
// message. If the echoed push for the same id arrived first, the merge
// rule collapses them into one entry.
func (s *Store) ConfirmPending(caseID int64, localID string, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.caseLocked(caseID)
	cs.pending = removePending(cs.pending, localID)
	s.applyLocked(SourceSend, msg)
}

// FailPending flags an optimistic entry as failed. The entry is kept, not
// removed, so the caller can surface it and re-submit deliberately; the
// store never retries.
func (s *Store) FailPending(caseID int64, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.cases[caseID]
	if !ok {
		return
	}
	for i := range cs.pending {
		if cs.pending[i].LocalID == localID {
			cs.pending[i].Failed = true
			return
		}
	}
}

// Pending returns the optimistic entries for a case in submission order.
func (s *Store) Pending(caseID int64) []models.PendingSend {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.cases[caseID]
	if !ok {
		return nil
	}
	out := make([]models.PendingSend, len(cs.pending))
	copy(out, cs.pending)
	return out
}

// Drop releases the cached state of a case once nothing observes it.
func (s *Store) Drop(caseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cases, caseID)
}

func (s *Store) caseLocked(caseID int64) *caseSet {
	cs, ok := s.cases[caseID]
	if !ok {
		cs = &caseSet{byID: make(map[int64]struct{})}
		s.cases[caseID] = cs
	}
	return cs
}

func removePending(pending []models.PendingSend, localID string) []models.PendingSend {
	for i := range pending {
		if pending[i].LocalID == localID {
			return append(pending[:i], pending[i+1:]...)
		}
	}
	return pending
}
