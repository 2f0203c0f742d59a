package memdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/models"
)

func (db *DB) CreateNotification(_ context.Context, n models.Notification) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	db.notifications = append(db.notifications, n)
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (db *DB) ListNotifications(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := []models.Notification{}
	for i := len(db.notifications) - 1; i >= 0; i-- {
		n := db.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (db *DB) MarkNotificationRead(_ context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.notifications {
		if db.notifications[i].ID == id {
			db.notifications[i].IsRead = true
			return nil
		}
	}
	return models.ErrNotFound
}

// --- payment and salary cycles ---

// ListEnrollments returns active enrollments ordered by id.
func (db *DB) ListEnrollments(context.Context) ([]models.Enrollment, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.Enrollment, 0, len(db.enrollments))
	for id, e := range db.enrollments {
		if !db.inactive[id] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (db *DB) UpdatePaymentCycle(_ context.Context, enrollmentID uuid.UUID, status models.CycleStatus, due time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.enrollments[enrollmentID]
	if !ok {
		return models.ErrNotFound
	}
	d := calendar.Date(due)
	e.PaymentStatus = status
	e.PaymentDueDate = &d
	return nil
}

// MarkPaymentPaid closes the current cycle. The due date is kept so the next
// cycle opens once it has passed.
func (db *DB) MarkPaymentPaid(_ context.Context, enrollmentID uuid.UUID, paidOn time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.enrollments[enrollmentID]
	if !ok {
		return models.ErrNotFound
	}
	d := calendar.Date(paidOn)
	e.LastPaymentDate = &d
	e.PaymentStatus = models.StatusPaid
	return nil
}

func (db *DB) ListTeacherSalaries(context.Context) ([]models.TeacherSalary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.TeacherSalary, 0, len(db.salaries))
	for _, s := range db.salaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeacherID.String() < out[j].TeacherID.String() })
	return out, nil
}

func (db *DB) UpdateSalaryCycle(_ context.Context, teacherID uuid.UUID, status models.CycleStatus, due time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.salaries[teacherID]
	if !ok {
		return models.ErrNotFound
	}
	d := calendar.Date(due)
	s.SalaryStatus = status
	s.SalaryDueDate = &d
	return nil
}

func (db *DB) MarkSalaryPaid(_ context.Context, teacherID uuid.UUID, paidOn time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.salaries[teacherID]
	if !ok {
		return models.ErrNotFound
	}
	d := calendar.Date(paidOn)
	s.LastSalaryDate = &d
	s.SalaryStatus = models.StatusPaid
	return nil
}

func reminderKey(r models.ReminderLog) string {
	return fmt.Sprintf("%s|%s|%s|%s", r.Kind, r.SubjectID, r.DueDate.Format(time.DateOnly), r.RunSlot)
}

// ClaimReminder records a reminder run. false means the same run was already
// claimed.
func (db *DB) ClaimReminder(_ context.Context, r models.ReminderLog) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := reminderKey(r)
	if _, dup := db.reminders[k]; dup {
		return false, nil
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	db.reminders[k] = r
	return true, nil
}

// --- web push ---

func (db *DB) SavePushSubscription(_ context.Context, s models.PushSubscription) (models.PushSubscription, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id, cur := range db.push {
		if cur.Endpoint == s.Endpoint {
			s.ID = id
			db.push[id] = s
			return s, nil
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	db.push[s.ID] = s
	return s, nil
}

func (db *DB) PushSubscriptions(_ context.Context, userID uuid.UUID) ([]models.PushSubscription, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.PushSubscription
	for _, s := range db.push {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (db *DB) DeletePushSubscription(_ context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.push, id)
	return nil
}
