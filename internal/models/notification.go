package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyAchievement NotificationType = "achievement"
	NotifyPayment     NotificationType = "payment"
	NotifySalary      NotificationType = "salary"
	NotifySystem      NotificationType = "system"
)

type Notification struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	UserID    uuid.UUID        `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	ActionURL string           `db:"action_url" json:"action_url,omitempty"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

type PushSubscription struct {
	ID       uuid.UUID `db:"id"`
	UserID   uuid.UUID `db:"user_id"`
	Endpoint string    `db:"endpoint"`
	P256dh   string    `db:"p256dh"`
	Auth     string    `db:"auth"`
}
