package gamification

// Point sources.
const (
	SourceAssignment    = "assignment"
	SourceAttendance    = "attendance"
	SourceGrade         = "grade"
	SourceLogin         = "login"
	SourcePlacementTest = "placement_test"
)

var fixedRewards = map[string]int{
	SourceAssignment:    10,
	SourceAttendance:    5,
	SourceLogin:         2,
	SourcePlacementTest: 15,
}

// RewardFor returns the default points for an event. score is only used for grades.
// Unknown sources earn nothing.
func RewardFor(source string, score float64) int {
	if source == SourceGrade {
		switch {
		case score >= 90:
			return 20
		case score >= 75:
			return 10
		default:
			return 5
		}
	}
	return fixedRewards[source]
}
