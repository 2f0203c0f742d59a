package models

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Role string

const (
	MainTeacher Role = "main_teacher"
	Teacher     Role = "teacher"
	Student     Role = "student"
	Parent      Role = "parent"
)

func (r Role) Valid() bool {
	switch r {
	case MainTeacher, Teacher, Student, Parent:
		return true
	}
	return false
}

type User struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name"`
	Email          string    `db:"email" json:"email,omitempty"`
	Phone          string    `db:"phone" json:"phone,omitempty"`
	TelegramChatID *int64    `db:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	Role           Role      `db:"role" json:"role"`
}

// Contact is the delivery view of a user: everything a channel needs to reach them.
type Contact struct {
	UserID         uuid.UUID
	Name           string
	Email          string
	Phone          string
	TelegramChatID *int64
	Role           Role
}

func (u User) Contact() Contact {
	return Contact{
		UserID:         u.ID,
		Name:           u.FullName,
		Email:          u.Email,
		Phone:          u.Phone,
		TelegramChatID: u.TelegramChatID,
		Role:           u.Role,
	}
}
