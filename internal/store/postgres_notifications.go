package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"booking-scheduler/internal/domain"
)

func (p *Postgres) InsertNotification(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	n.ID = newID()
	q := `INSERT INTO notifications (id, user_id, type, message, is_read)
	      VALUES ($1,$2,$3,$4,$5) RETURNING created_at`
	return p.DB.QueryRow(ctx, q, n.ID, n.UserID, n.Type, n.Message, n.IsRead).Scan(&n.CreatedAt)
}

const notificationCols = `id, user_id, type, message, is_read, created_at`

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (p *Postgres) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `SELECT ` + notificationCols + ` FROM notifications
	      WHERE user_id=$1 AND ($2 = FALSE OR is_read = FALSE)
	      ORDER BY created_at DESC, id DESC LIMIT $3`
	rows, err := p.DB.Query(ctx, q, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *Postgres) GetNotification(ctx context.Context, userID, id string) (domain.Notification, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `SELECT ` + notificationCols + ` FROM notifications WHERE id=$1 AND user_id=$2`
	n, err := scanNotification(p.DB.QueryRow(ctx, q, id, userID))
	if isNoRows(err) {
		return n, notFound("notification")
	}
	return n, err
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, userID, id string) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	res, err := p.DB.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return notFound("notification")
	}
	return nil
}

func (p *Postgres) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	res, err := p.DB.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE user_id=$1 AND is_read=FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (p *Postgres) DeleteNotification(ctx context.Context, userID, id string) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	res, err := p.DB.Exec(ctx, `DELETE FROM notifications WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return notFound("notification")
	}
	return nil
}

func (p *Postgres) SaveCalendarToken(ctx context.Context, userID string, token []byte) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `INSERT INTO calendar_tokens (user_id, token, updated_at) VALUES ($1,$2,now())
	      ON CONFLICT (user_id) DO UPDATE SET token=EXCLUDED.token, updated_at=now()`
	_, err := p.DB.Exec(ctx, q, userID, string(token))
	return err
}

func (p *Postgres) GetCalendarToken(ctx context.Context, userID string) ([]byte, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	var token string
	err := p.DB.QueryRow(ctx, `SELECT token::text FROM calendar_tokens WHERE user_id=$1`, userID).Scan(&token)
	if isNoRows(err) {
		return nil, notFound("calendar token")
	}
	return []byte(token), err
}
