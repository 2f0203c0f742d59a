package models

import (
	"time"

	"github.com/google/uuid"
)

// CycleStatus is the state of a monthly payment or salary cycle.
type CycleStatus string

const (
	StatusPending CycleStatus = "pending"
	StatusPaid    CycleStatus = "paid"
	StatusOverdue CycleStatus = "overdue"
)

// Enrollment is a group_students row with the fields the payment cycle needs.
type Enrollment struct {
	ID                   uuid.UUID   `db:"id"`
	GroupID              uuid.UUID   `db:"group_id"`
	GroupName            string      `db:"group_name"`
	StudentID            uuid.UUID   `db:"student_id"`
	MonthlyPaymentAmount int64       `db:"monthly_payment_amount"`
	CourseStartDate      time.Time   `db:"course_start_date"`
	LastPaymentDate      *time.Time  `db:"last_payment_date"`
	PaymentStatus        CycleStatus `db:"payment_status"`
	PaymentDueDate       *time.Time  `db:"payment_due_date"`
}

type TeacherSalary struct {
	TeacherID           uuid.UUID   `db:"teacher_id"`
	SalaryAmount        int64       `db:"salary_amount"`
	EmploymentStartDate time.Time   `db:"employment_start_date"`
	LastSalaryDate      *time.Time  `db:"last_salary_date"`
	SalaryStatus        CycleStatus `db:"salary_status"`
	SalaryDueDate       *time.Time  `db:"salary_due_date"`
}

type ReminderKind string

const (
	ReminderPayment ReminderKind = "payment"
	ReminderSalary  ReminderKind = "salary"
)

// ReminderLog is the audit/idempotency row for one reminder run of one subject.
type ReminderLog struct {
	ID           uuid.UUID    `db:"id"`
	Kind         ReminderKind `db:"kind"`
	SubjectID    uuid.UUID    `db:"subject_id"`
	DueDate      time.Time    `db:"due_date"`
	RunSlot      string       `db:"run_slot"`
	ReminderType string       `db:"reminder_type"`
	CreatedAt    time.Time    `db:"created_at"`
}
