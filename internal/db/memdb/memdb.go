// Package memdb is a process-local store with the same methods as db.Store.
// It backs dev runs without DATABASE_URL and the unit tests.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/models"
)

type attendanceRow struct {
	studentID uuid.UUID
	date      time.Time
	status    models.AttendanceStatus
	seq       int
}

type DB struct {
	mu sync.RWMutex

	users       map[uuid.UUID]models.User
	parents     map[uuid.UUID][]uuid.UUID // student -> parents
	enrollments map[uuid.UUID]*models.Enrollment
	inactive    map[uuid.UUID]bool
	salaries    map[uuid.UUID]*models.TeacherSalary

	progress      map[uuid.UUID]models.Progress
	history       []models.PointsEntry
	badges        map[uuid.UUID]map[string]time.Time
	notifications []models.Notification

	attendance  []attendanceRow
	grades      map[uuid.UUID][]float64
	submissions map[uuid.UUID]int

	reminders map[string]models.ReminderLog
	push      map[uuid.UUID]models.PushSubscription

	seq int
}

func Open() *DB {
	return &DB{
		users:       make(map[uuid.UUID]models.User),
		parents:     make(map[uuid.UUID][]uuid.UUID),
		enrollments: make(map[uuid.UUID]*models.Enrollment),
		inactive:    make(map[uuid.UUID]bool),
		salaries:    make(map[uuid.UUID]*models.TeacherSalary),
		progress:    make(map[uuid.UUID]models.Progress),
		badges:      make(map[uuid.UUID]map[string]time.Time),
		grades:      make(map[uuid.UUID][]float64),
		submissions: make(map[uuid.UUID]int),
		reminders:   make(map[string]models.ReminderLog),
		push:        make(map[uuid.UUID]models.PushSubscription),
	}
}

func (db *DB) Ping(context.Context) error { return nil }

// --- seeding ---

func (db *DB) AddUser(u models.User) models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	db.users[u.ID] = u
	return u
}

func (db *DB) LinkParent(parentID, studentID uuid.UUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.parents[studentID] = append(db.parents[studentID], parentID)
}

func (db *DB) AddEnrollment(e models.Enrollment) models.Enrollment {
	db.mu.Lock()
	defer db.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.PaymentStatus == "" {
		e.PaymentStatus = models.StatusPending
	}
	db.enrollments[e.ID] = &e
	return e
}

func (db *DB) DeactivateEnrollment(id uuid.UUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.inactive[id] = true
}

func (db *DB) AddSalary(s models.TeacherSalary) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.SalaryStatus == "" {
		s.SalaryStatus = models.StatusPending
	}
	db.salaries[s.TeacherID] = &s
}

func (db *DB) AddAttendance(studentID uuid.UUID, date time.Time, status models.AttendanceStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq++
	db.attendance = append(db.attendance, attendanceRow{studentID: studentID, date: calendar.Date(date), status: status, seq: db.seq})
}

func (db *DB) AddGrade(studentID uuid.UUID, score float64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.grades[studentID] = append(db.grades[studentID], score)
}

func (db *DB) AddSubmissions(userID uuid.UUID, n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.submissions[userID] += n
}

// --- inspection ---

func (db *DB) History(userID uuid.UUID) []models.PointsEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.PointsEntry
	for _, e := range db.history {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (db *DB) Enrollment(id uuid.UUID) models.Enrollment {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if e, ok := db.enrollments[id]; ok {
		return *e
	}
	return models.Enrollment{}
}

func (db *DB) Salary(teacherID uuid.UUID) models.TeacherSalary {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if s, ok := db.salaries[teacherID]; ok {
		return *s
	}
	return models.TeacherSalary{}
}

func (db *DB) ReminderLogs() []models.ReminderLog {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.ReminderLog, 0, len(db.reminders))
	for _, r := range db.reminders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// --- users ---

func (db *DB) GetUser(_ context.Context, id uuid.UUID) (models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

func (db *DB) ParentsOf(_ context.Context, studentID uuid.UUID) ([]models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.User
	for _, pid := range db.parents[studentID] {
		if u, ok := db.users[pid]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (db *DB) UsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.User
	for _, u := range db.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (db *DB) GroupStudentIDs(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []uuid.UUID
	for id, e := range db.enrollments {
		if e.GroupID == groupID && !db.inactive[id] {
			out = append(out, e.StudentID)
		}
	}
	return out, nil
}
