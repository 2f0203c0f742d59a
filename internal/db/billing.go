package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/models"
)

// ListEnrollments - активные записи в группы с полями платёжного цикла.
func (s *Store) ListEnrollments(ctx context.Context) ([]models.Enrollment, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT gs.id, gs.group_id, g.name, gs.student_id, gs.monthly_payment_amount,
		       gs.course_start_date, gs.last_payment_date, gs.payment_status, gs.payment_due_date
		FROM group_students gs
		JOIN groups g ON g.id = gs.group_id
		WHERE gs.is_active
		ORDER BY gs.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Enrollment
	for rows.Next() {
		var (
			e         models.Enrollment
			last, due sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.GroupName, &e.StudentID, &e.MonthlyPaymentAmount,
			&e.CourseStartDate, &last, &e.PaymentStatus, &due); err != nil {
			return nil, err
		}
		e.LastPaymentDate = nullDate(last)
		e.PaymentDueDate = nullDate(due)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePaymentCycle(ctx context.Context, enrollmentID uuid.UUID, status models.CycleStatus, due time.Time) error {
	return s.affectOne(ctx, `
		UPDATE group_students SET payment_status = $2, payment_due_date = $3 WHERE id = $1`,
		enrollmentID, status, dateArg(&due))
}

// MarkPaymentPaid - оплата текущего цикла; срок оставляем, следующий цикл
// откроет напоминалка после него.
func (s *Store) MarkPaymentPaid(ctx context.Context, enrollmentID uuid.UUID, paidOn time.Time) error {
	return s.affectOne(ctx, `
		UPDATE group_students SET payment_status = 'paid', last_payment_date = $2 WHERE id = $1`,
		enrollmentID, dateArg(&paidOn))
}

// UpsertSalary - ставка и дата найма преподавателя.
func (s *Store) UpsertSalary(ctx context.Context, sal models.TeacherSalary) error {
	if sal.SalaryStatus == "" {
		sal.SalaryStatus = models.StatusPending
	}
	_, err := s.exec(ctx, `
		INSERT INTO teacher_salaries (teacher_id, salary_amount, employment_start_date, last_salary_date, salary_status, salary_due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (teacher_id) DO UPDATE
		SET salary_amount = EXCLUDED.salary_amount, employment_start_date = EXCLUDED.employment_start_date`,
		sal.TeacherID, sal.SalaryAmount, dateArg(&sal.EmploymentStartDate), dateArg(sal.LastSalaryDate),
		sal.SalaryStatus, dateArg(sal.SalaryDueDate))
	return err
}

func (s *Store) ListTeacherSalaries(ctx context.Context) ([]models.TeacherSalary, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts.teacher_id, ts.salary_amount, ts.employment_start_date, ts.last_salary_date,
		       ts.salary_status, ts.salary_due_date
		FROM teacher_salaries ts
		JOIN users u ON u.id = ts.teacher_id
		ORDER BY ts.teacher_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TeacherSalary
	for rows.Next() {
		var (
			t         models.TeacherSalary
			last, due sql.NullTime
		)
		if err := rows.Scan(&t.TeacherID, &t.SalaryAmount, &t.EmploymentStartDate, &last, &t.SalaryStatus, &due); err != nil {
			return nil, err
		}
		t.LastSalaryDate = nullDate(last)
		t.SalaryDueDate = nullDate(due)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSalaryCycle(ctx context.Context, teacherID uuid.UUID, status models.CycleStatus, due time.Time) error {
	return s.affectOne(ctx, `
		UPDATE teacher_salaries SET salary_status = $2, salary_due_date = $3 WHERE teacher_id = $1`,
		teacherID, status, dateArg(&due))
}

func (s *Store) MarkSalaryPaid(ctx context.Context, teacherID uuid.UUID, paidOn time.Time) error {
	return s.affectOne(ctx, `
		UPDATE teacher_salaries SET salary_status = 'paid', last_salary_date = $2 WHERE teacher_id = $1`,
		teacherID, dateArg(&paidOn))
}

// ClaimReminder - запись в payment_reminders; уникальный ключ
// (kind, subject_id, due_date, run_slot) не даёт отправить дважды за один запуск.
func (s *Store) ClaimReminder(ctx context.Context, r models.ReminderLog) (bool, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.exec(ctx, `
		INSERT INTO payment_reminders (id, kind, subject_id, due_date, run_slot, reminder_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kind, subject_id, due_date, run_slot) DO NOTHING`,
		r.ID, r.Kind, r.SubjectID, dateArg(&r.DueDate), r.RunSlot, r.ReminderType, r.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) affectOne(ctx context.Context, q string, args ...any) error {
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
