package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

// MessageRepository is the backing message store consumed by the chat core.
type MessageRepository interface {
	// FetchThread returns all messages exchanged between the two users, in
	// either direction, ordered by created_at ascending.
	FetchThread(ctx context.Context, userA, userB string) ([]models.Message, error)
	// Insert stores a message and returns the row with its server id.
	Insert(ctx context.Context, msg models.Message) (models.Message, error)
	// MarkRead flips is_read on every unread message from senderID to
	// receiverID and returns the number of rows affected.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	// LatestPerConversation returns, per counterpart of userID, the newest
	// message plus the count of unread messages addressed to userID.
	LatestPerConversation(ctx context.Context, userID string) ([]models.SummaryRow, error)
}

// MessageRepo is the sqlx/Postgres implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// FetchThread returns the full two-way thread ordered by created_at ascending.
func (r *MessageRepo) FetchThread(ctx context.Context, userA, userB string) ([]models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, is_read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}

// Insert stores a message. The optimistic created_at is kept as the stored
// timestamp so a confirmed send does not move in the thread.
func (r *MessageRepo) Insert(ctx context.Context, msg models.Message) (models.Message, error) {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	stored := msg
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content, is_read, created_at)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, created_at`,
		msg.SenderID, msg.ReceiverID, msg.Content, msg.IsRead, createdAt).
		Scan(&stored.ID, &stored.CreatedAt)
	return stored, err
}

// MarkRead flips is_read in bulk for one direction of one conversation.
func (r *MessageRepo) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE
         WHERE sender_id=$1 AND receiver_id=$2 AND is_read = FALSE`,
		senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LatestPerConversation aggregates the newest message per counterpart along
// with the unread count for userID.
func (r *MessageRepo) LatestPerConversation(ctx context.Context, userID string) ([]models.SummaryRow, error) {
	query := `WITH involved AS (
            SELECT *,
                LEAST(sender_id, receiver_id) || ':' || GREATEST(sender_id, receiver_id) AS pair_key
            FROM messages
            WHERE sender_id=$1 OR receiver_id=$1
        ), latest AS (
            SELECT DISTINCT ON (pair_key) *
            FROM involved
            ORDER BY pair_key, created_at DESC, id DESC
        )
        SELECT l.id, l.sender_id, l.receiver_id, l.content, l.is_read, l.created_at,
            (SELECT COUNT(*) FROM messages m
             WHERE m.receiver_id=$1 AND m.is_read = FALSE
               AND m.sender_id = CASE WHEN l.sender_id=$1 THEN l.receiver_id ELSE l.sender_id END
            ) AS unread_count
        FROM latest l
        ORDER BY l.created_at DESC`
	var rows []models.SummaryRow
	err := r.db.SelectContext(ctx, &rows, query, userID)
	return rows, err
}
