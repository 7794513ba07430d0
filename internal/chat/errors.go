package chat

import "errors"

// Failure taxonomy of the sync core. None of these are retried automatically:
// a silent retry of a chat send could duplicate messages, so every retry is a
// user-triggered action.
var (
	// ErrFetchFailed marks a failed bulk load; the caller shows an error or
	// empty state and offers a manual refresh.
	ErrFetchFailed = errors.New("chat: fetch failed")
	// ErrSendFailed marks a rejected send; the optimistic entry has already
	// been rolled back when this is returned.
	ErrSendFailed = errors.New("chat: send failed")
	// ErrReadMarkFailed is non-fatal; the unread badge may stay stale until
	// the next load.
	ErrReadMarkFailed = errors.New("chat: read mark failed")
)
