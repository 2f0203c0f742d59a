package app

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/export"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/models"
)

const maxLeaderboardLimit = 100

func (a *api) badgeCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gamification.Badges)
}

func (a *api) awardPoints(w http.ResponseWriter, r *http.Request) {
	var req gamification.Award
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Engine.AwardPoints(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type eventRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	Source      string    `json:"source" validate:"required,oneof=assignment attendance grade login placement_test"`
	Score       float64   `json:"score" validate:"gte=0,lte=100"`
	SourceID    *string   `json:"source_id,omitempty" validate:"omitempty,max=128"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
}

// recordEvent - начисление по таблице наград вместо явного числа баллов.
func (a *api) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	points := gamification.RewardFor(req.Source, req.Score)
	if points <= 0 {
		a.fail(w, r, fmt.Errorf("%w: no reward for %q", errBadRequest, req.Source))
		return
	}
	res, err := a.Engine.AwardPoints(r.Context(), gamification.Award{
		UserID:      req.UserID,
		Points:      points,
		Source:      req.Source,
		SourceID:    req.SourceID,
		Description: req.Description,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) getProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "userID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	s, err := a.Engine.Summary(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *api) pointsHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "userID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 50, 500)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	h, err := a.Store.PointsHistory(r.Context(), id, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *api) resetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "userID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Engine.ResetProgress(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// evaluateBadges - перепроверка бейджей без начисления (после импорта оценок и т.п.).
func (a *api) evaluateBadges(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "userID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	s, err := a.Engine.Summary(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	earned, err := a.Engine.EvaluateBadges(r.Context(), s.Progress)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if earned == nil {
		earned = []models.Badge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"new_badges": earned})
}

func (a *api) groupLeaderboard(r *http.Request) (uuid.UUID, []models.LeaderboardEntry, error) {
	groupID, err := uuidParam(r, "groupID")
	if err != nil {
		return uuid.Nil, nil, err
	}
	limit, err := intQuery(r, "limit", a.LeaderboardLimit, maxLeaderboardLimit)
	if err != nil {
		return uuid.Nil, nil, err
	}
	entries, err := a.Engine.Leaderboard(r.Context(), groupID, limit)
	return groupID, entries, err
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	groupID, entries, err := a.groupLeaderboard(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "entries": entries})
}

func (a *api) leaderboardXLSX(w http.ResponseWriter, r *http.Request) {
	groupID, entries, err := a.groupLeaderboard(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := export.LeaderboardXLSX(entries)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	name := export.LeaderboardFilename(groupID.String(), a.today())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
