package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicops/libs/db"
)

// Notification is one message addressed to a practitioner or a patient.
type Notification struct {
	ID             string
	EventID        string
	RecipientID    string
	RecipientKind  string
	AppointmentID  string
	OrganizationID string
	Category       string
	Event          string
	Title          string
	Summary        string
	OccurredAt     time.Time
	ReadAt         *time.Time
	CreatedAt      time.Time
}

type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores n inside tx. A notification already stored for the same
// event and recipient is left untouched.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (
			id, event_id, recipient_id, recipient_kind, appointment_id, organization_id,
			category, event, title, summary, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, recipient_id) DO NOTHING
	`, n.ID, n.EventID, n.RecipientID, n.RecipientKind, n.AppointmentID, n.OrganizationID,
		n.Category, n.Event, n.Title, n.Summary, n.OccurredAt)
	return err
}

// List returns the recipient's notifications, newest first, together with
// the number of unread ones.
func (r *Repository) List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, recipient_id, recipient_kind, appointment_id, organization_id,
			category, event, title, summary, occurred_at, read_at, created_at
		FROM notifications
		WHERE recipient_id = $1
			AND ($2 = false OR read_at IS NULL)
		ORDER BY occurred_at DESC, created_at DESC
		LIMIT $3
	`, recipientID, opts.UnreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.EventID, &n.RecipientID, &n.RecipientKind, &n.AppointmentID, &n.OrganizationID,
			&n.Category, &n.Event, &n.Title, &n.Summary, &n.OccurredAt, &n.ReadAt, &n.CreatedAt)
		return n, err
	})
	if err != nil {
		return nil, 0, err
	}

	var unread int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM notifications
		WHERE recipient_id = $1 AND read_at IS NULL
	`, recipientID).Scan(&unread); err != nil {
		return nil, 0, err
	}
	return items, unread, nil
}

// MarkRead marks the given notifications of the recipient as read, or all of
// them when ids is empty. It returns the number of rows changed.
func (r *Repository) MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		tag, err := r.pool.Exec(ctx, `
			UPDATE notifications
			SET read_at = $2
			WHERE recipient_id = $1 AND read_at IS NULL
		`, recipientID, at)
		return tag.RowsAffected(), err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = $3
		WHERE recipient_id = $1 AND id = ANY($2::uuid[]) AND read_at IS NULL
	`, recipientID, ids, at)
	return tag.RowsAffected(), err
}
