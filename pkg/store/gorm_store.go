package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"groovie/pkg/domain"
)

const migrateLockID int64 = 47761203

// GormStore implements Store on Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ConversationModel{}, &MessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM message_models m
				WHERE NOT EXISTS (SELECT 1 FROM conversation_models c WHERE c.id = m.conversation_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_conversation_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_conversation_id_fkey
					FOREIGN KEY (conversation_id) REFERENCES conversation_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure message foreign key: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser upserts a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "access_level", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetUser(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) CreateConversation(ctx context.Context, c domain.Conversation) error {
	model := conversationToModel(c)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(c.Messages) == 0 {
			return nil
		}
		return tx.Create(messagesToModels(c.ID, c.Messages)).Error
	})
}

func (s *GormStore) GetConversation(ctx context.Context, id string) (domain.Conversation, bool, error) {
	db := s.db.WithContext(ctx)
	var model ConversationModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	var msgs []MessageModel
	if err := db.Where("conversation_id = ?", id).Order("created_at ASC").Find(&msgs).Error; err != nil {
		return domain.Conversation{}, false, err
	}
	conv := conversationFromModel(model)
	conv.Messages = messagesFromModels(msgs)
	return conv, true, nil
}

// ListConversations returns conversations oldest first, messages attached.
func (s *GormStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error) {
	db := s.db.WithContext(ctx)
	query := db.Order("created_at ASC")
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if filter.Mode != "" {
		query = query.Where("mode = ?", string(filter.Mode))
	}
	var models []ConversationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.Conversation{}, nil
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var msgModels []MessageModel
	if err := db.Where("conversation_id IN ?", ids).Order("created_at ASC").Find(&msgModels).Error; err != nil {
		return nil, err
	}
	byConversation := make(map[string][]MessageModel, len(models))
	for _, m := range msgModels {
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
	}

	out := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		conv := conversationFromModel(m)
		conv.Messages = messagesFromModels(byConversation[m.ID])
		out = append(out, conv)
	}
	return out, nil
}

func (s *GormStore) UpdateConversationTitle(ctx context.Context, id, title string, at time.Time) (domain.Conversation, error) {
	res := s.db.WithContext(ctx).Model(&ConversationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":      title,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return domain.Conversation{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Conversation{}, ErrNotFound
	}
	conv, ok, err := s.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	return conv, nil
}

// DeleteConversation removes the conversation and its messages.
func (s *GormStore) DeleteConversation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&ConversationModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AppendMessages records messages and folds their artifacts into the
// conversation, bumping updated_at.
func (s *GormStore) AppendMessages(ctx context.Context, conversationID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Create(messagesToModels(conversationID, msgs)).Error; err != nil {
			return err
		}
		artifacts := decodeArtifacts(conv.Artifacts)
		latest := conv.UpdatedAt
		for _, msg := range msgs {
			artifacts = append(artifacts, msg.Artifacts...)
			if msg.CreatedAt.After(latest) {
				latest = msg.CreatedAt
			}
		}
		return tx.Model(&ConversationModel{}).Where("id = ?", conversationID).Updates(map[string]any{
			"artifacts":  datatypes.JSON(encodeArtifacts(artifacts)),
			"updated_at": latest.UTC(),
		}).Error
	})
}

// ListRecentMessages returns the newest limit messages in chronological order.
func (s *GormStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

func userToModel(u domain.User) UserModel {
	level := u.AccessLevel
	if !level.Valid() {
		level = domain.AccessFree
	}
	return UserModel{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		AccessLevel: string(level),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	level := domain.AccessLevel(m.AccessLevel)
	if !level.Valid() {
		level = domain.AccessFree
	}
	return domain.User{
		ID:          m.ID,
		Email:       m.Email,
		Name:        m.Name,
		AccessLevel: level,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func conversationToModel(c domain.Conversation) ConversationModel {
	return ConversationModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Mode:      string(c.Mode),
		Title:     c.Title,
		Artifacts: encodeArtifacts(c.Artifacts),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:        m.ID,
		UserID:    m.UserID,
		Mode:      domain.ChatMode(m.Mode),
		Title:     m.Title,
		Messages:  []domain.Message{},
		Artifacts: decodeArtifacts(m.Artifacts),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messagesToModels(conversationID string, msgs []domain.Message) []MessageModel {
	models := make([]MessageModel, 0, len(msgs))
	for _, msg := range msgs {
		models = append(models, MessageModel{
			ID:             msg.ID,
			ConversationID: conversationID,
			UserID:         msg.UserID,
			Role:           string(msg.Role),
			Mode:           string(msg.Mode),
			Content:        msg.Content,
			Artifacts:      encodeArtifacts(msg.Artifacts),
			CreatedAt:      msg.CreatedAt,
		})
	}
	return models
}

func messagesFromModels(models []MessageModel) []domain.Message {
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           domain.Role(m.Role),
		Mode:           domain.ChatMode(m.Mode),
		Content:        m.Content,
		Artifacts:      decodeArtifacts(m.Artifacts),
		CreatedAt:      m.CreatedAt,
	}
}

func encodeArtifacts(artifacts []domain.Artifact) []byte {
	if len(artifacts) == 0 {
		return nil
	}
	raw, _ := json.Marshal(artifacts)
	return raw
}

func decodeArtifacts(raw []byte) []domain.Artifact {
	if len(raw) == 0 {
		return nil
	}
	var artifacts []domain.Artifact
	_ = json.Unmarshal(raw, &artifacts)
	return artifacts
}
