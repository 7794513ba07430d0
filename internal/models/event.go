package models

// EventKind tags a realtime change event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
)

// Event is a parsed realtime change notification for one message row. Raw
// payloads are validated into this form once, at the subscription boundary;
// downstream components never see untyped data.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message Message   `json:"message"`
}
