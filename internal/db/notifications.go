package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/models"
)

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, action_url, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.ActionURL, n.CreatedAt)
	return err
}

// ListNotifications - свежие сверху.
func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, action_url, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id
		LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ActionURL, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	res, err := s.exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SavePushSubscription - upsert по endpoint: браузер может переподписаться другим пользователем.
func (s *Store) SavePushSubscription(ctx context.Context, sub models.PushSubscription) (models.PushSubscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		RETURNING id`, sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth).Scan(&sub.ID)
	if isFKViolation(err) {
		return models.PushSubscription{}, models.ErrNotFound
	}
	return sub, err
}

func (s *Store) PushSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.PushSubscription, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth FROM push_subscriptions
		WHERE user_id = $1 ORDER BY endpoint`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PushSubscription
	for rows.Next() {
		var p models.PushSubscription
		if err := rows.Scan(&p.ID, &p.UserID, &p.Endpoint, &p.P256dh, &p.Auth); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePushSubscription(ctx context.Context, id uuid.UUID) error {
	_, err := s.exec(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id)
	return err
}
