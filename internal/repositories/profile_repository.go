package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository resolves user ids to display names. Used only to label
// inbox rows, never for identity decisions.
type ProfileRepository interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// ProfileRepo is the sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// DisplayName returns the display name for one user.
func (r *ProfileRepo) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, `SELECT display_name FROM profiles WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrProfileNotFound
	}
	return name, err
}

// DisplayNames bulk-resolves display names; absent ids are simply missing
// from the result map.
func (r *ProfileRepo) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := map[string]string{}
	if len(userIDs) == 0 {
		return names, nil
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, display_name FROM profiles WHERE id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
