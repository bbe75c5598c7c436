package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"booking-scheduler/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type Postgres struct {
	DB      *pgxpool.Pool
	timeout time.Duration
	log     zerolog.Logger
}

func OpenPostgres(ctx context.Context, cfg Config, log zerolog.Logger) (*Postgres, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Postgres{DB: pool, timeout: timeout, log: log.With().Str("component", "store").Logger()}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	return p.DB.Ping(ctx)
}

func (p *Postgres) Close() { p.DB.Close() }

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (p *Postgres) CreateBusiness(ctx context.Context, b *domain.Business) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	if b.ID == "" {
		b.ID = newID()
	}
	q := `INSERT INTO businesses (id, owner_id, name, description, address, is_active)
	      VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`
	return p.DB.QueryRow(ctx, q, b.ID, b.OwnerID, b.Name, b.Description, b.Address, b.IsActive).Scan(&b.CreatedAt)
}

const businessCols = `id, owner_id, name, description, address, is_active, created_at`

func scanBusiness(row pgx.Row) (domain.Business, error) {
	var b domain.Business
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Description, &b.Address, &b.IsActive, &b.CreatedAt)
	return b, err
}

func (p *Postgres) GetBusiness(ctx context.Context, id string) (domain.Business, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	b, err := scanBusiness(p.DB.QueryRow(ctx, `SELECT `+businessCols+` FROM businesses WHERE id=$1`, id))
	if isNoRows(err) {
		return b, notFound("business")
	}
	return b, err
}

func (p *Postgres) ListBusinesses(ctx context.Context, activeOnly bool) ([]domain.Business, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `SELECT ` + businessCols + ` FROM businesses WHERE ($1 = FALSE OR is_active) ORDER BY created_at`
	rows, err := p.DB.Query(ctx, q, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateBusiness(ctx context.Context, b *domain.Business) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `UPDATE businesses SET name=$2, description=$3, address=$4, is_active=$5
	      WHERE id=$1 RETURNING owner_id, created_at`
	err := p.DB.QueryRow(ctx, q, b.ID, b.Name, b.Description, b.Address, b.IsActive).Scan(&b.OwnerID, &b.CreatedAt)
	if isNoRows(err) {
		return notFound("business")
	}
	return err
}

func (p *Postgres) DeleteBusiness(ctx context.Context, id string) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	res, err := p.DB.Exec(ctx, `DELETE FROM businesses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return notFound("business")
	}
	return nil
}

func (p *Postgres) CreateService(ctx context.Context, s *domain.Service) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	if s.ID == "" {
		s.ID = newID()
	}
	q := `INSERT INTO services (id, business_id, name, description, duration_minutes, price, is_active)
	      VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`
	err := p.DB.QueryRow(ctx, q, s.ID, s.BusinessID, s.Name, s.Description, s.DurationMinutes, s.Price, s.IsActive).Scan(&s.CreatedAt)
	if pgCode(err) == "23503" {
		return notFound("business")
	}
	return err
}

const serviceCols = `id, business_id, name, description, duration_minutes, price, is_active, created_at`

func scanService(row pgx.Row) (domain.Service, error) {
	var s domain.Service
	err := row.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Description, &s.DurationMinutes, &s.Price, &s.IsActive, &s.CreatedAt)
	return s, err
}

func (p *Postgres) GetService(ctx context.Context, id string) (domain.Service, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	s, err := scanService(p.DB.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id=$1`, id))
	if isNoRows(err) {
		return s, notFound("service")
	}
	return s, err
}

func (p *Postgres) ListServices(ctx context.Context, businessID string) ([]domain.Service, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	rows, err := p.DB.Query(ctx, `SELECT `+serviceCols+` FROM services WHERE business_id=$1 ORDER BY created_at`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateService(ctx context.Context, s *domain.Service) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `UPDATE services SET name=$2, description=$3, duration_minutes=$4, price=$5, is_active=$6
	      WHERE id=$1 RETURNING business_id, created_at`
	err := p.DB.QueryRow(ctx, q, s.ID, s.Name, s.Description, s.DurationMinutes, s.Price, s.IsActive).Scan(&s.BusinessID, &s.CreatedAt)
	if isNoRows(err) {
		return notFound("service")
	}
	return err
}

func (p *Postgres) DeleteService(ctx context.Context, id string) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	res, err := p.DB.Exec(ctx, `DELETE FROM services WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return notFound("service")
	}
	return nil
}

func (p *Postgres) ListAvailability(ctx context.Context, businessID string) ([]domain.AvailabilityRule, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	q := `SELECT id, business_id, day_of_week, is_enabled, open_time, close_time, created_at
	      FROM availability_rules WHERE business_id=$1 ORDER BY day_of_week`
	rows, err := p.DB.Query(ctx, q, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AvailabilityRule
	for rows.Next() {
		var r domain.AvailabilityRule
		if err := rows.Scan(&r.ID, &r.BusinessID, &r.DayOfWeek, &r.Enabled, &r.OpenTime, &r.CloseTime, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertAvailability(ctx context.Context, businessID string, rules []domain.AvailabilityRule) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()
	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := `INSERT INTO availability_rules (id, business_id, day_of_week, is_enabled, open_time, close_time)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (business_id, day_of_week)
	      DO UPDATE SET is_enabled=EXCLUDED.is_enabled, open_time=EXCLUDED.open_time, close_time=EXCLUDED.close_time`
	for _, r := range rules {
		if _, err := tx.Exec(ctx, q, newID(), businessID, r.DayOfWeek, r.Enabled, r.OpenTime, r.CloseTime); err != nil {
			if pgCode(err) == "23503" {
				return notFound("business")
			}
			return err
		}
	}
	return tx.Commit(ctx)
}
