package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"booking-scheduler/internal/domain"
)

const bookingCols = `b.id, b.service_id, b.user_id, b.start_time, b.end_time, b.status, b.created_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.ServiceID, &b.UserID, &b.StartTime, &b.EndTime, &b.Status, &b.CreatedAt)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) FindOverlapping(ctx context.Context, serviceID string, start, end time.Time) ([]domain.Booking, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `SELECT ` + bookingCols + ` FROM bookings b
	      WHERE b.service_id=$1 AND b.status='booked' AND b.start_time < $3 AND b.end_time > $2
	      ORDER BY b.start_time`
	rows, err := p.DB.Query(ctx, q, serviceID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// InsertBooking serializes writers of one service with a transaction-scoped
// advisory lock, re-checks for overlap and inserts. The bookings_no_overlap
// exclusion constraint rejects anything that slips past, e.g. a writer that
// does not take the lock.
func (p *Postgres) InsertBooking(ctx context.Context, b *domain.Booking) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.ServiceID); err != nil {
		return err
	}

	checkQ := `SELECT id FROM bookings
	           WHERE service_id=$1 AND status='booked' AND start_time < $3 AND end_time > $2
	           LIMIT 1`
	var existingID string
	err = tx.QueryRow(ctx, checkQ, b.ServiceID, b.StartTime.UTC(), b.EndTime.UTC()).Scan(&existingID)
	if err == nil {
		return slotTaken()
	}
	if !isNoRows(err) {
		return err
	}

	id := newID()
	insertQ := `INSERT INTO bookings (id, service_id, user_id, start_time, end_time, status)
	            VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`
	err = tx.QueryRow(ctx, insertQ, id, b.ServiceID, b.UserID, b.StartTime.UTC(), b.EndTime.UTC(), b.Status).Scan(&b.CreatedAt)
	switch pgCode(err) {
	case "":
	case pgExclusionViolation, pgUniqueViolation:
		return slotTaken()
	case "23503":
		return notFound("service")
	default:
		return err
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if code := pgCode(err); code == pgExclusionViolation || code == pgUniqueViolation {
			return slotTaken()
		}
		return err
	}
	b.ID = id
	return nil
}

func (p *Postgres) UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	res, err := p.DB.Exec(ctx, `UPDATE bookings SET status=$3 WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		if pgCode(err) == pgExclusionViolation {
			return slotTaken()
		}
		return err
	}
	if res.RowsAffected() > 0 {
		return nil
	}
	var current string
	err = p.DB.QueryRow(ctx, `SELECT status FROM bookings WHERE id=$1`, id).Scan(&current)
	if isNoRows(err) {
		return notFound("booking")
	}
	if err != nil {
		return err
	}
	return statusConflict(from)
}

func (p *Postgres) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	b, err := scanBooking(p.DB.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings b WHERE b.id=$1`, id))
	if isNoRows(err) {
		return b, notFound("booking")
	}
	return b, err
}

func (p *Postgres) ListBooked(ctx context.Context, serviceID string, from, to time.Time) ([]domain.Booking, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `SELECT ` + bookingCols + ` FROM bookings b
	      WHERE b.service_id=$1 AND b.status='booked' AND b.start_time >= $2 AND b.start_time < $3
	      ORDER BY b.start_time`
	rows, err := p.DB.Query(ctx, q, serviceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

const detailSelect = `SELECT ` + bookingCols + `, s.name, biz.id, biz.name, biz.owner_id
	FROM bookings b
	JOIN services s ON s.id = b.service_id
	JOIN businesses biz ON biz.id = s.business_id`

func (p *Postgres) queryDetails(ctx context.Context, where string, args ...any) ([]domain.BookingDetail, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	rows, err := p.DB.Query(ctx, detailSelect+` WHERE `+where+` ORDER BY b.start_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookingDetail
	for rows.Next() {
		var d domain.BookingDetail
		if err := rows.Scan(&d.ID, &d.ServiceID, &d.UserID, &d.StartTime, &d.EndTime, &d.Status, &d.CreatedAt,
			&d.ServiceName, &d.BusinessID, &d.BusinessName, &d.OwnerID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) ListUserBookings(ctx context.Context, userID string) ([]domain.BookingDetail, error) {
	return p.queryDetails(ctx, `b.user_id=$1`, userID)
}

func (p *Postgres) ListBusinessBookings(ctx context.Context, businessID string) ([]domain.BookingDetail, error) {
	return p.queryDetails(ctx, `biz.id=$1`, businessID)
}

func (p *Postgres) ListUpcoming(ctx context.Context, from, to time.Time) ([]domain.BookingDetail, error) {
	return p.queryDetails(ctx, `b.status='booked' AND b.start_time >= $1 AND b.start_time < $2`, from.UTC(), to.UTC())
}
