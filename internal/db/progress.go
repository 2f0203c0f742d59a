package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/models"
)

// AppendPoints - запись в журнал баллов (только вставка).
func (s *Store) AppendPoints(ctx context.Context, e models.PointsEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.exec(ctx, `
		INSERT INTO points_history (id, user_id, points, source, source_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Points, e.Source, e.SourceID, e.Description, e.CreatedAt)
	if isFKViolation(err) {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, e.UserID)
	}
	return err
}

func (s *Store) PointsHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointsEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, points, source, source_id, description, created_at
		FROM points_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.PointsEntry{}
	for rows.Next() {
		var (
			e        models.PointsEntry
			sid, dsc sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &e.Source, &sid, &dsc, &e.CreatedAt); err != nil {
			return nil, err
		}
		if sid.Valid {
			e.SourceID = &sid.String
		}
		if dsc.Valid {
			e.Description = &dsc.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const progressCols = `user_id, total_points, current_level, current_streak, longest_streak, last_activity_date, updated_at`

func scanProgress(row interface{ Scan(...any) error }) (models.Progress, error) {
	var (
		p    models.Progress
		last sql.NullTime
	)
	if err := row.Scan(&p.UserID, &p.TotalPoints, &p.CurrentLevel, &p.CurrentStreak, &p.LongestStreak, &last, &p.UpdatedAt); err != nil {
		return models.Progress{}, err
	}
	p.LastActivityDate = nullDate(last)
	return p, nil
}

// UpdateProgress - атомарное чтение-изменение-запись прогресса одного пользователя.
// Строка создаётся при первом обращении и блокируется FOR UPDATE до коммита,
// поэтому параллельные начисления не теряются.
func (s *Store) UpdateProgress(ctx context.Context, userID uuid.UUID, fn func(cur models.Progress, exists bool) models.Progress) (models.Progress, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return models.Progress{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_progress (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		if isFKViolation(err) {
			return models.Progress{}, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		return models.Progress{}, err
	}
	n, _ := res.RowsAffected()
	exists := n == 0

	cur, err := scanProgress(tx.QueryRowContext(ctx, `SELECT `+progressCols+` FROM user_progress WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.Progress{}, err
	}

	next := fn(cur, exists)
	next.UserID = userID
	_, err = tx.ExecContext(ctx, `
		UPDATE user_progress
		SET total_points = $2, current_level = $3, current_streak = $4, longest_streak = $5,
		    last_activity_date = $6, updated_at = $7
		WHERE user_id = $1`,
		userID, next.TotalPoints, next.CurrentLevel, next.CurrentStreak, next.LongestStreak,
		dateArg(next.LastActivityDate), next.UpdatedAt)
	if err != nil {
		return models.Progress{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Progress{}, err
	}
	return next, nil
}

func (s *Store) GetProgress(ctx context.Context, userID uuid.UUID) (models.Progress, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	p, err := scanProgress(s.db.QueryRowContext(ctx, `SELECT `+progressCols+` FROM user_progress WHERE user_id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Progress{}, models.ErrNotFound
	}
	return p, err
}

// ResetProgress - обнуляет баллы и серию; longest_streak, журнал и бейджи остаются.
func (s *Store) ResetProgress(ctx context.Context, userID uuid.UUID) (models.Progress, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	p, err := scanProgress(s.db.QueryRowContext(ctx, `
		UPDATE user_progress
		SET total_points = 0, current_level = $2, current_streak = 0, last_activity_date = NULL, updated_at = now()
		WHERE user_id = $1
		RETURNING `+progressCols, userID, gamification.LevelFor(0)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Progress{}, models.ErrNotFound
	}
	return p, err
}

// ActivityStats - агрегаты для бейджей: сданные задания, последние посещения, оценки.
func (s *Store) ActivityStats(ctx context.Context, userID uuid.UUID, attendanceWindow int) (models.ActivityStats, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var st models.ActivityStats
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM files WHERE uploaded_by = $1 AND kind = 'assignment'`, userID).Scan(&st.SubmittedFiles); err != nil {
		return st, fmt.Errorf("files: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM attendance
		WHERE student_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2`, userID, attendanceWindow)
	if err != nil {
		return st, fmt.Errorf("attendance: %w", err)
	}
	for rows.Next() {
		var a models.AttendanceStatus
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return st, err
		}
		st.RecentAttendance = append(st.RecentAttendance, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT score::float8 FROM grades WHERE student_id = $1`, userID)
	if err != nil {
		return st, fmt.Errorf("grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g float64
		if err := rows.Scan(&g); err != nil {
			return st, err
		}
		st.GradeScores = append(st.GradeScores, g)
	}
	return st, rows.Err()
}

func (s *Store) UserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, badge_id, earned_at FROM user_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserBadge
	for rows.Next() {
		var b models.UserBadge
		if err := rows.Scan(&b.UserID, &b.BadgeID, &b.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AwardBadge - идемпотентная выдача; false, если бейдж уже был.
func (s *Store) AwardBadge(ctx context.Context, b models.UserBadge) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING`, b.UserID, b.BadgeID, b.EarnedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// LeaderboardRows - прогресс когорты, points DESC, user_id ASC.
func (s *Store) LeaderboardRows(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.LeaderboardRow, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, id.String())
	}

	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, u.full_name, p.total_points, p.current_level, p.current_streak
		FROM user_progress p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = ANY($1::uuid[])
		ORDER BY p.total_points DESC, p.user_id ASC
		LIMIT $2`, pq.StringArray(ids), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LeaderboardRow
	for rows.Next() {
		var r models.LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.FullName, &r.TotalPoints, &r.CurrentLevel, &r.CurrentStreak); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
