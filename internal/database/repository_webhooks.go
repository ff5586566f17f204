package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// OUTBOUND WEBHOOKS
// ============================================================================

// CreateWebhook inserts an outbound webhook configuration
func (r *Repository) CreateWebhook(ctx context.Context, w *Webhook) error {
	query := `
		INSERT INTO webhooks (name, url, events, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query, w.Name, w.URL, w.Events, w.IsActive,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

// GetWebhooksForEvent loads active webhooks subscribed to an event name
func (r *Repository) GetWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	query := `
		SELECT id, name, url, events, is_active, created_at, updated_at
		FROM webhooks
		WHERE is_active = TRUE AND $1 = ANY(events)
	`
	return r.queryWebhooks(ctx, query, event)
}

// ListWebhooks lists all webhook configurations
func (r *Repository) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	query := `
		SELECT id, name, url, events, is_active, created_at, updated_at
		FROM webhooks
		ORDER BY created_at DESC
	`
	return r.queryWebhooks(ctx, query)
}

// GetWebhookByID retrieves a single webhook configuration
func (r *Repository) GetWebhookByID(ctx context.Context, id string) (*Webhook, error) {
	query := `
		SELECT id, name, url, events, is_active, created_at, updated_at
		FROM webhooks
		WHERE id = $1
	`
	w := &Webhook{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.Name, &w.URL, &w.Events, &w.IsActive, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateWebhook updates name, url, events and active flag
func (r *Repository) UpdateWebhook(ctx context.Context, w *Webhook) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE webhooks
		SET name = $2, url = $3, events = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
	`, w.ID, w.Name, w.URL, w.Events, w.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWebhook removes a webhook configuration
func (r *Repository) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(&w.ID, &w.Name, &w.URL, &w.Events, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}
