package gamification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/metrics"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/observability"
)

var (
	ErrInvalidPoints = errors.New("points must be positive")
	ErrUserRequired  = errors.New("user id is required")
	ErrSourceMissing = errors.New("source is required")
)

// Store is the persistence the engine needs. UpdateProgress must run fn under a
// per-user lock (or equivalent) so concurrent awards do not lose updates.
type Store interface {
	AppendPoints(ctx context.Context, e models.PointsEntry) error
	UpdateProgress(ctx context.Context, userID uuid.UUID, fn func(cur models.Progress, exists bool) models.Progress) (models.Progress, error)
	GetProgress(ctx context.Context, userID uuid.UUID) (models.Progress, error)
	ResetProgress(ctx context.Context, userID uuid.UUID) (models.Progress, error)

	ActivityStats(ctx context.Context, userID uuid.UUID, attendanceWindow int) (models.ActivityStats, error)
	UserBadges(ctx context.Context, userID uuid.UUID) ([]models.UserBadge, error)
	AwardBadge(ctx context.Context, b models.UserBadge) (bool, error)
	CreateNotification(ctx context.Context, n models.Notification) error

	GroupStudentIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	LeaderboardRows(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.LeaderboardRow, error)
}

type Engine struct {
	store Store
	log   *zap.Logger
	loc   *time.Location
	now   func() time.Time
}

func NewEngine(store Store, log *zap.Logger, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{store: store, log: log, loc: loc, now: time.Now}
}

// WithClock replaces the time source; used by tests and backfills.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type Award struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	Points      int       `json:"points" validate:"required,gte=1"`
	Source      string    `json:"source" validate:"required,max=64"`
	SourceID    *string   `json:"source_id,omitempty" validate:"omitempty,max=128"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
}

type AwardResult struct {
	Progress      models.Progress `json:"progress"`
	PreviousLevel int             `json:"previous_level"`
	LevelUp       bool            `json:"level_up"`
	NewBadges     []models.Badge  `json:"new_badges"`
}

// AwardPoints records a point-earning event and updates the user's progress.
// Ledger and progress failures are returned; badge and notification failures
// are logged and reported only.
func (e *Engine) AwardPoints(ctx context.Context, a Award) (AwardResult, error) {
	switch {
	case a.UserID == uuid.Nil:
		return AwardResult{}, ErrUserRequired
	case a.Points < 1:
		return AwardResult{}, ErrInvalidPoints
	case strings.TrimSpace(a.Source) == "":
		return AwardResult{}, ErrSourceMissing
	}

	now := e.now()
	entry := models.PointsEntry{
		ID:          uuid.New(),
		UserID:      a.UserID,
		Points:      a.Points,
		Source:      a.Source,
		SourceID:    a.SourceID,
		Description: a.Description,
		CreatedAt:   now,
	}
	if err := e.store.AppendPoints(ctx, entry); err != nil {
		return AwardResult{}, fmt.Errorf("append points: %w", err)
	}

	today := calendar.Day(now, e.loc)
	// a user without progress starts at level 1, so 0 -> 120 points is a level up
	prevLevel := 1
	p, err := e.store.UpdateProgress(ctx, a.UserID, func(cur models.Progress, exists bool) models.Progress {
		prevLevel = 1
		if exists {
			prevLevel = cur.CurrentLevel
		}
		next := Advance(cur, exists, a.Points, today)
		next.UpdatedAt = now
		return next
	})
	if err != nil {
		return AwardResult{}, fmt.Errorf("update progress: %w", err)
	}

	metrics.AwardEvents.WithLabelValues(a.Source).Inc()
	metrics.PointsAwarded.WithLabelValues(a.Source).Add(float64(a.Points))

	res := AwardResult{Progress: p, PreviousLevel: prevLevel, NewBadges: []models.Badge{}}
	if p.CurrentLevel > prevLevel {
		res.LevelUp = true
		e.notify(ctx, models.Notification{
			UserID:  a.UserID,
			Type:    models.NotifyAchievement,
			Title:   "⬆️ Level up!",
			Message: fmt.Sprintf("You reached level %d: %s.", p.CurrentLevel, LevelName(p.CurrentLevel)),
		})
	}

	badges, err := e.EvaluateBadges(ctx, p)
	if err != nil {
		e.log.Warn("badge evaluation failed", zap.String("user_id", a.UserID.String()), zap.Error(err))
		observability.CaptureErrWith(err, map[string]string{"op": "evaluate_badges"})
	}
	res.NewBadges = append(res.NewBadges, badges...)

	e.log.Info("points awarded",
		zap.String("user_id", a.UserID.String()),
		zap.String("source", a.Source),
		zap.Int("points", a.Points),
		zap.Int("total", p.TotalPoints),
		zap.Int("level", p.CurrentLevel),
		zap.Int("streak", p.CurrentStreak),
		zap.Int("new_badges", len(badges)),
	)
	return res, nil
}

// EvaluateBadges awards every catalog badge the user newly qualifies for and
// returns the awarded ones. Already-held badges are never awarded again.
func (e *Engine) EvaluateBadges(ctx context.Context, p models.Progress) ([]models.Badge, error) {
	stats, err := e.store.ActivityStats(ctx, p.UserID, AttendanceWindow)
	if err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	owned, err := e.store.UserBadges(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("user badges: %w", err)
	}
	held := make(map[string]bool, len(owned))
	for _, b := range owned {
		held[b.BadgeID] = true
	}

	var (
		awarded []models.Badge
		errs    []error
	)
	for _, b := range QualifyingBadges(p, stats, held) {
		inserted, err := e.store.AwardBadge(ctx, models.UserBadge{UserID: p.UserID, BadgeID: b.ID, EarnedAt: e.now()})
		if err != nil {
			errs = append(errs, fmt.Errorf("award %s: %w", b.ID, err))
			continue
		}
		if !inserted {
			// a concurrent evaluation got there first
			continue
		}
		metrics.BadgesAwarded.WithLabelValues(b.ID).Inc()
		awarded = append(awarded, b)
		e.notify(ctx, models.Notification{
			UserID:  p.UserID,
			Type:    models.NotifyAchievement,
			Title:   fmt.Sprintf("%s New badge: %s", b.Icon, b.Name),
			Message: fmt.Sprintf("Congratulations! You earned \"%s\": %s.", b.Name, b.Description),
		})
	}
	return awarded, errors.Join(errs...)
}

func (e *Engine) notify(ctx context.Context, n models.Notification) {
	n.ID = uuid.New()
	n.CreatedAt = e.now()
	if err := e.store.CreateNotification(ctx, n); err != nil {
		metrics.HandlerErrors.Inc()
		e.log.Warn("create notification failed", zap.String("user_id", n.UserID.String()), zap.Error(err))
		observability.CaptureErr(err)
	}
}

// ResetProgress zeroes points and streak. History and badges are kept.
func (e *Engine) ResetProgress(ctx context.Context, userID uuid.UUID) (models.Progress, error) {
	if userID == uuid.Nil {
		return models.Progress{}, ErrUserRequired
	}
	p, err := e.store.ResetProgress(ctx, userID)
	if err != nil {
		return models.Progress{}, fmt.Errorf("reset progress: %w", err)
	}
	e.log.Info("progress reset", zap.String("user_id", userID.String()))
	return p, nil
}

type EarnedBadge struct {
	models.Badge
	EarnedAt time.Time `json:"earned_at"`
}

type Summary struct {
	Progress          models.Progress `json:"progress"`
	LevelName         string          `json:"level_name"`
	PointsToNextLevel int             `json:"points_to_next_level"`
	Badges            []EarnedBadge   `json:"badges"`
	AttendanceRate    float64         `json:"attendance_rate"`
}

// Summary returns the user's progress with derived fields. models.ErrNotFound
// when the user never earned points.
func (e *Engine) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	p, err := e.store.GetProgress(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	owned, err := e.store.UserBadges(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("user badges: %w", err)
	}
	stats, err := e.store.ActivityStats(ctx, userID, AttendanceWindow)
	if err != nil {
		return Summary{}, fmt.Errorf("activity stats: %w", err)
	}

	s := Summary{
		Progress:          p,
		LevelName:         LevelName(p.CurrentLevel),
		PointsToNextLevel: PointsToNextLevel(p.TotalPoints),
		Badges:            make([]EarnedBadge, 0, len(owned)),
		AttendanceRate:    RateAttendance.Rate(stats.RecentAttendance),
	}
	for _, ub := range owned {
		if b, ok := BadgeByID(ub.BadgeID); ok {
			s.Badges = append(s.Badges, EarnedBadge{Badge: b, EarnedAt: ub.EarnedAt})
		}
	}
	return s, nil
}

// Leaderboard ranks the active students of a group.
func (e *Engine) Leaderboard(ctx context.Context, groupID uuid.UUID, limit int) ([]models.LeaderboardEntry, error) {
	ids, err := e.store.GroupStudentIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("group students: %w", err)
	}
	return e.LeaderboardFor(ctx, ids, limit)
}

// LeaderboardFor ranks an explicit cohort. Users without progress are left out.
func (e *Engine) LeaderboardFor(ctx context.Context, userIDs []uuid.UUID, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if len(userIDs) == 0 {
		return []models.LeaderboardEntry{}, nil
	}
	rows, err := e.store.LeaderboardRows(ctx, userIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard rows: %w", err)
	}
	return RankRows(rows, limit), nil
}
