package gormstore

import (
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// RoomModel is the GORM model for rooms table.
type RoomModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Code      string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	Title     string    `gorm:"type:varchar(200)"`
	HostID    string    `gorm:"type:varchar(64);index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (RoomModel) TableName() string { return "rooms" }

func (m *RoomModel) ToDomain() *domain.Room {
	return &domain.Room{
		ID:        domain.RoomID(m.ID),
		Code:      domain.RoomCode(m.Code),
		Title:     m.Title,
		OwnerID:   domain.UserID(m.HostID),
		CreatedAt: m.CreatedAt,
	}
}

func roomToModel(r *domain.Room) *RoomModel {
	return &RoomModel{
		ID:        string(r.ID),
		Code:      string(r.Code),
		Title:     r.Title,
		HostID:    string(r.OwnerID),
		CreatedAt: r.CreatedAt,
	}
}

// MessageModel is the GORM model for messages table. Seq breaks ties
// between messages stored within the same clock tick.
type MessageModel struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	ID         string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	RoomID     string    `gorm:"type:varchar(36);index:idx_room_created,priority:1;not null"`
	SenderID   string    `gorm:"type:varchar(64)"`
	SenderName string    `gorm:"type:varchar(64)"`
	Text       string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index:idx_room_created,priority:2"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() domain.Message {
	return domain.Message{
		ID:         m.ID,
		RoomID:     domain.RoomID(m.RoomID),
		SenderID:   domain.UserID(m.SenderID),
		SenderName: m.SenderName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}
