package models

import "time"

// ConversationSummary is one inbox row: the newest message exchanged with a
// counterpart plus the number of messages from them not yet read. At most one
// summary exists per counterpart; summaries are updated in place and never
// deleted.
type ConversationSummary struct {
	CounterpartID       string    `json:"counterpart_id"`
	CounterpartName     string    `json:"counterpart_name,omitempty"`
	LastMessageID       int64     `json:"last_message_id"`
	LastMessageContent  string    `json:"last_message_content"`
	LastMessageAt       time.Time `json:"last_message_at"`
	LastMessageSenderID string    `json:"last_message_sender_id"`
	LastMessageIsRead   bool      `json:"last_message_is_read"`
	UnreadCount         int       `json:"unread_count"`
}

// SummaryRow is the raw latest-message-per-conversation aggregation row as the
// store returns it. The aggregator re-keys rows so the counterpart is always
// the other party.
type SummaryRow struct {
	Message
	UnreadCount int `db:"unread_count" json:"unread_count"`
}
