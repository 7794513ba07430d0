package models

import "time"

// Message represents one chat message between two users. A message exists in
// two forms: an optimistic entry created locally at send time (ID zero,
// ClientTempID set) and a confirmed server row (ID set). Both forms share this
// type; merging the two is the reconciler's job.
type Message struct {
	ID           int64     `db:"id" json:"id,omitempty"`
	ClientTempID string    `db:"-" json:"client_temp_id,omitempty"`
	SenderID     string    `db:"sender_id" json:"sender_id"`
	ReceiverID   string    `db:"receiver_id" json:"receiver_id"`
	Content      string    `db:"content" json:"content"`
	IsRead       bool      `db:"is_read" json:"is_read"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Confirmed reports whether the message carries a server-assigned id.
func (m Message) Confirmed() bool {
	return m.ID != 0
}

// CounterpartOf returns the participant that is not userID. A conversation is
// identified by its counterpart, so this is also the conversation key.
func (m Message) CounterpartOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether userID is sender or receiver of the message.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
