// Package membership answers whether two users hold an accepted
// connection, which gates every message send.
package membership

import (
	"context"
	"time"
)

// Guard reports whether a and b are mutually connected. The relation is
// symmetric.
type Guard interface {
	IsConnected(ctx context.Context, a, b string) (bool, error)
}

const StatusAccepted = "accepted"

// ConnectionRequestModel is the GORM model for the connection_requests
// table. The connection workflow owns writes; this package only reads.
type ConnectionRequestModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	FromUserID string    `gorm:"column:from_user_id;size:128;not null;index:idx_connection_requests_pair,priority:1"`
	ToUserID   string    `gorm:"column:to_user_id;size:128;not null;index:idx_connection_requests_pair,priority:2"`
	Status     string    `gorm:"size:16;not null;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (ConnectionRequestModel) TableName() string { return "connection_requests" }
