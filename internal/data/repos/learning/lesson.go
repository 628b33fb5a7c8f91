package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type LessonRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error)
	SetContent(dbc dbctx.Context, id uuid.UUID, content string) error
	UpdateStatusIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{db: db, log: baseLog.With("repo", "LessonRepo")}
}

func (r *lessonRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var l types.Lesson
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *lessonRepo) SetContent(dbc dbctx.Context, id uuid.UUID, content string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Lesson{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"content": content, "updated_at": time.Now().UTC()}).Error
}

func (r *lessonRepo) UpdateStatusIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return updateStatusIf(transaction.WithContext(dbc.Ctx), &types.Lesson{}, id, from, to)
}

func (r *lessonRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Lesson{}).Error
}
