package gamification

// Level is one row of the fixed level table.
type Level struct {
	Level          int    `json:"level"`
	PointsRequired int    `json:"points_required"`
	Name           string `json:"name"`
}

// Levels is ascending by PointsRequired.
var Levels = []Level{
	{1, 0, "Beginner"},
	{2, 100, "Elementary"},
	{3, 250, "Pre-Intermediate"},
	{4, 500, "Intermediate"},
	{5, 1000, "Upper-Intermediate"},
	{6, 2000, "Advanced"},
	{7, 3500, "Proficient"},
	{8, 5000, "Master"},
}

// LevelFor returns the highest level whose threshold is <= points.
// Anything below the first threshold (negative included) is level 1.
func LevelFor(points int) int {
	lvl := Levels[0].Level
	for _, l := range Levels {
		if points < l.PointsRequired {
			break
		}
		lvl = l.Level
	}
	return lvl
}

// LevelName returns the display name of a level, "" for unknown levels.
func LevelName(level int) string {
	for _, l := range Levels {
		if l.Level == level {
			return l.Name
		}
	}
	return ""
}

// PointsToNextLevel is 0 at or above the top threshold.
func PointsToNextLevel(points int) int {
	for _, l := range Levels {
		if points < l.PointsRequired {
			return l.PointsRequired - points
		}
	}
	return 0
}
