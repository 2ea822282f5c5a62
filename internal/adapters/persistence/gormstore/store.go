// Package gormstore persists rooms and chat messages with GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects with the configured driver and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&RoomModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	log.Info().Str("module", "store.gorm").Str("driver", driver).Msg("database ready")
	return db, nil
}

type RoomStore struct {
	db *gorm.DB
}

func NewRoomStore(db *gorm.DB) *RoomStore { return &RoomStore{db: db} }

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	model := roomToModel(room)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		log.Error().Err(err).Str("module", "store.gorm").Str("code", string(room.Code)).Msg("failed to create room")
		return err
	}
	room.CreatedAt = model.CreatedAt
	return nil
}

func (s *RoomStore) FindByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	var model RoomModel
	err := s.db.WithContext(ctx).First(&model, "code = ?", string(code)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find room by code: %w", err)
	}
	return model.ToDomain(), nil
}

func (s *RoomStore) FindByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	var model RoomModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	return model.ToDomain(), nil
}

type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore { return &MessageStore{db: db} }

func (s *MessageStore) Append(ctx context.Context, msg *domain.Message) error {
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	model := &MessageModel{
		ID:         msg.ID,
		RoomID:     string(msg.RoomID),
		SenderID:   string(msg.SenderID),
		SenderName: msg.SenderName,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		log.Error().Err(err).Str("module", "store.gorm").Str("room_id", string(msg.RoomID)).Msg("failed to save message")
		return err
	}
	return nil
}

func (s *MessageStore) Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	var models []MessageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("created_at DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out := make([]domain.Message, len(models))
	for i := range models {
		out[len(models)-1-i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *MessageStore) History(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	var models []MessageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}
	out := make([]domain.Message, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}
