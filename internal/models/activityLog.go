package models

import (
	"time"
)

type ActivityLog struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Entity      string    `db:"entity"`
	EntityID    int64     `db:"entity_id"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}
