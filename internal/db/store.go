// Package db - хранилище на Postgres. Store реализует интерфейсы
// gamification.Store, reminders.Store и notify.PushStore.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/metrics"
)

type Store struct {
	db *sql.DB
}

func New(database *sql.DB) *Store { return &Store{db: database} }

// Ping - для /healthz, с метрикой задержки.
func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.db.PingContext(ctx)
	metrics.ObserveDBPing(time.Since(start))
	return err
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return s.db.ExecContext(ctx, q, args...)
}

// nullDate - DATE колонка в *time.Time (полночь UTC).
func nullDate(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	d := calendar.Date(t.Time)
	return &d
}

func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return calendar.Date(*t)
}

// isFKViolation - 23503 и для pgx, и для lib/pq (тесты ходят через pq).
func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}
