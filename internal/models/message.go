package models

import "time"

// Message represents one entry in a case conversation. A message is
// immutable once created except for IsRead, which only flips false to true.
type Message struct {
	ID          int64     `db:"id" json:"id"`
	CaseID      int64     `db:"case_id" json:"caseId"`
	SenderID    string    `db:"sender_id" json:"senderId"`
	RecipientID string    `db:"recipient_id" json:"recipientId"`
	Body        string    `db:"body" json:"message"`
	IsRead      bool      `db:"is_read" json:"isRead"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Before reports whether m precedes other in the (createdAt, id) total order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// PendingSend is an optimistic outbound message awaiting the server's
// create response. It lives only between submission and confirmation or
// failure and is never persisted.
type PendingSend struct {
	LocalID     string    `json:"localId"`
	CaseID      int64     `json:"caseId"`
	RecipientID string    `json:"recipientId"`
	Body        string    `json:"message"`
	Failed      bool      `json:"failed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CaseParticipants is the read-only participant record of a case. LawyerID
// is empty while no lawyer has been assigned.
type CaseParticipants struct {
	CaseID    int64  `json:"id"`
	CitizenID string `json:"citizenId"`
	LawyerID  string `json:"lawyerId"`
}

// Counterparty returns the participant that is not me, or "" when the
// other side is not yet known (no lawyer assigned).
func (c CaseParticipants) Counterparty(me string) string {
	if c.CitizenID == me {
		return c.LawyerID
	}
	return c.CitizenID
}
