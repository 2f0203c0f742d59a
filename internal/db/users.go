package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/models"
)

const userCols = `id, full_name, email, phone, telegram_chat_id, role`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var (
		u    models.User
		chat sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &chat, &u.Role); err != nil {
		return models.User{}, err
	}
	if chat.Valid {
		v := chat.Int64
		u.TelegramChatID = &v
	}
	return u, nil
}

func (s *Store) queryUsers(ctx context.Context, q string, args ...any) ([]models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateUser - вставка пользователя; пустой ID генерируется.
func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if !u.Role.Valid() {
		return models.User{}, fmt.Errorf("unknown role %q", u.Role)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (id, full_name, email, phone, telegram_chat_id, role)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.FullName, u.Email, u.Phone, u.TelegramChatID, u.Role)
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return u, err
}

func (s *Store) LinkParent(ctx context.Context, parentID, studentID uuid.UUID) error {
	_, err := s.exec(ctx, `
		INSERT INTO parent_students (parent_id, student_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, parentID, studentID)
	return err
}

func (s *Store) ParentsOf(ctx context.Context, studentID uuid.UUID) ([]models.User, error) {
	return s.queryUsers(ctx, `
		SELECT u.id, u.full_name, u.email, u.phone, u.telegram_chat_id, u.role
		FROM parent_students ps
		JOIN users u ON u.id = ps.parent_id
		WHERE ps.student_id = $1
		ORDER BY u.full_name`, studentID)
}

func (s *Store) UsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return s.queryUsers(ctx, `SELECT `+userCols+` FROM users WHERE role = $1 ORDER BY full_name`, role)
}

// CreateGroup - учебная группа.
func (s *Store) CreateGroup(ctx context.Context, name string, teacherID *uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.exec(ctx, `INSERT INTO groups (id, name, teacher_id) VALUES ($1, $2, $3)`, id, name, teacherID)
	return id, err
}

// Enroll - запись ученика в группу (строка group_students с платёжным циклом).
func (s *Store) Enroll(ctx context.Context, e models.Enrollment) (models.Enrollment, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.PaymentStatus == "" {
		e.PaymentStatus = models.StatusPending
	}
	_, err := s.exec(ctx, `
		INSERT INTO group_students (id, group_id, student_id, monthly_payment_amount, course_start_date,
		                            last_payment_date, payment_status, payment_due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.GroupID, e.StudentID, e.MonthlyPaymentAmount, dateArg(&e.CourseStartDate),
		dateArg(e.LastPaymentDate), e.PaymentStatus, dateArg(e.PaymentDueDate))
	return e, err
}

func (s *Store) GroupStudentIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id FROM group_students
		WHERE group_id = $1 AND is_active
		ORDER BY student_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecordAttendance, RecordGrade, RecordSubmission - факты учёбы, по которым
// считаются бейджи. Пишутся соседними сервисами платформы; здесь для тестов и сидов.
func (s *Store) RecordAttendance(ctx context.Context, groupID *uuid.UUID, studentID uuid.UUID, date time.Time, status models.AttendanceStatus) error {
	_, err := s.exec(ctx, `
		INSERT INTO attendance (group_id, student_id, date, status) VALUES ($1, $2, $3, $4)`,
		groupID, studentID, dateArg(&date), status)
	return err
}

func (s *Store) RecordGrade(ctx context.Context, studentID uuid.UUID, score float64) error {
	_, err := s.exec(ctx, `INSERT INTO grades (student_id, score) VALUES ($1, $2)`, studentID, score)
	return err
}

func (s *Store) RecordSubmission(ctx context.Context, userID uuid.UUID, name string) error {
	_, err := s.exec(ctx, `INSERT INTO files (uploaded_by, kind, name) VALUES ($1, 'assignment', $2)`, userID, name)
	return err
}
