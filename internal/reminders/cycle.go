// Package reminders runs the monthly payment and salary cycles: it moves each
// enrollment or teacher salary through pending, overdue and paid, and sends a
// reminder on the due day and every run while overdue.
package reminders

import (
	"time"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/models"
)

type Reminder string

const (
	RemindNone     Reminder = ""
	RemindDueToday Reminder = "due_today"
	RemindOverdue  Reminder = "overdue"
)

// Cycle is the stored state of one monthly cycle. Start is the course or
// employment start; LastPaid and Due are nil until known.
type Cycle struct {
	Start    time.Time
	LastPaid *time.Time
	Status   models.CycleStatus
	Due      *time.Time
}

// Step is what a run decides for a cycle.
type Step struct {
	Due     time.Time
	Status  models.CycleStatus
	Remind  Reminder
	Changed bool // Due or Status differ from the stored ones
}

// AnchorDay is the day of month the cycle falls due on.
func AnchorDay(c Cycle) int {
	if c.LastPaid != nil {
		return c.LastPaid.Day()
	}
	return c.Start.Day()
}

// NextDueDate is the anchor day of today's month, or of the next month when
// that is already past. Short months clamp to their last day.
func NextDueDate(anchor int, today time.Time) time.Time {
	today = calendar.Date(today)
	due := calendar.OnDay(today.Year(), today.Month(), anchor)
	if due.Before(today) {
		y, m := calendar.NextMonth(today.Year(), today.Month())
		due = calendar.OnDay(y, m, anchor)
	}
	return due
}

// dueAfterPayment never lands on or before the payment day itself.
func dueAfterPayment(anchor int, today time.Time, paid *time.Time) time.Time {
	due := NextDueDate(anchor, today)
	if paid != nil && !due.After(calendar.Date(*paid)) {
		y, m := calendar.NextMonth(due.Year(), due.Month())
		due = calendar.OnDay(y, m, anchor)
	}
	return due
}

// Advance applies one run on today to the cycle.
func Advance(c Cycle, today time.Time) Step {
	today = calendar.Date(today)
	anchor := AnchorDay(c)

	if c.Status == models.StatusPaid {
		switch {
		case c.Due == nil:
			return Step{Due: dueAfterPayment(anchor, today, c.LastPaid), Status: models.StatusPaid, Changed: true}
		case !today.After(calendar.Date(*c.Due)):
			return Step{Due: calendar.Date(*c.Due), Status: models.StatusPaid}
		}
		// the paid cycle is over; open the next one
		st := decide(dueAfterPayment(anchor, today, c.LastPaid), today)
		st.Changed = true
		return st
	}

	var due time.Time
	if c.Due != nil {
		due = calendar.Date(*c.Due)
	} else {
		due = NextDueDate(anchor, today)
	}
	st := decide(due, today)
	st.Changed = c.Due == nil || st.Status != c.Status
	return st
}

func decide(due, today time.Time) Step {
	switch {
	case today.Equal(due):
		return Step{Due: due, Status: models.StatusPending, Remind: RemindDueToday}
	case today.After(due):
		return Step{Due: due, Status: models.StatusOverdue, Remind: RemindOverdue}
	}
	return Step{Due: due, Status: models.StatusPending}
}
