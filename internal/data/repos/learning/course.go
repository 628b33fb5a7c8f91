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

type CourseRepo interface {
	Create(dbc dbctx.Context, courses []*types.Course) ([]*types.Course, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error)
	GetByTaskID(dbc dbctx.Context, taskID string) (*types.Course, error)
	GetWithOutline(dbc dbctx.Context, id uuid.UUID) (*types.Course, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Course, error)
	ListByRoadmap(dbc dbctx.Context, userID, roadmapID uuid.UUID) ([]*types.Course, error)
	SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
	UpdateStatusIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error)
	ReplaceOutline(dbc dbctx.Context, course *types.Course, modules []*types.Module) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Count(dbc dbctx.Context) (int64, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	repoLog := baseLog.With("repo", "CourseRepo")
	return &courseRepo{db: db, log: repoLog}
}

func (r *courseRepo) Create(dbc dbctx.Context, courses []*types.Course) ([]*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(courses) == 0 {
		return []*types.Course{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Course
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) GetByTaskID(dbc dbctx.Context, taskID string) (*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if taskID == "" {
		return nil, nil
	}
	var c types.Course
	err := transaction.WithContext(dbc.Ctx).Where("task_id = ?", taskID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) GetWithOutline(dbc dbctx.Context, id uuid.UUID) (*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Course
	err := transaction.WithContext(dbc.Ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Where("id = ?", id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Course
	if userID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) ListByRoadmap(dbc dbctx.Context, userID, roadmapID uuid.UUID) ([]*types.Course, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Course
	if userID == uuid.Nil || roadmapID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ? AND roadmap_id = ?", userID, roadmapID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"task_id": taskID, "updated_at": time.Now().UTC()}).Error
}

func (r *courseRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *courseRepo) UpdateStatusIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return updateStatusIf(transaction.WithContext(dbc.Ctx), &types.Course{}, id, from, to)
}

// ReplaceOutline overwrites the course header and swaps its modules and lessons for the given tree.
// Running it twice with the same tree leaves the same rows, so a retried generation is harmless.
func (r *courseRepo) ReplaceOutline(dbc dbctx.Context, course *types.Course, modules []*types.Module) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if course == nil || course.ID == uuid.Nil {
		return errors.New("ReplaceOutline: missing course")
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteCourseChildren(tx, course.ID); err != nil {
			return err
		}
		if err := tx.Model(&types.Course{}).
			Where("id = ?", course.ID).
			Updates(map[string]interface{}{
				"title":       course.Title,
				"description": course.Description,
				"updated_at":  time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		for i, m := range modules {
			if m == nil {
				continue
			}
			lessons := m.Lessons
			m.Lessons = nil
			m.ID = uuid.Nil
			m.CourseID = course.ID
			m.OrderIndex = i
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			for j, l := range lessons {
				if l == nil {
					continue
				}
				l.ID = uuid.Nil
				l.ModuleID = m.ID
				l.UserID = course.UserID
				l.OrderIndex = j
				if err := tx.Create(l).Error; err != nil {
					return err
				}
			}
			m.Lessons = lessons
		}
		return nil
	})
}

// Delete removes the course with its modules and lessons and unlinks any roadmap node pointing at it.
func (r *courseRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteCourseChildren(tx, id); err != nil {
			return err
		}
		if err := tx.Model(&types.RoadmapNode{}).
			Where("course_id = ?", id).
			Update("course_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&types.Course{}).Error
	})
}

func (r *courseRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).Model(&types.Course{}).Count(&n).Error
	return n, err
}

func deleteCourseChildren(tx *gorm.DB, courseID uuid.UUID) error {
	moduleIDs := tx.Model(&types.Module{}).Select("id").Where("course_id = ?", courseID)
	if err := tx.Where("module_id IN (?)", moduleIDs).Delete(&types.Lesson{}).Error; err != nil {
		return err
	}
	return tx.Where("course_id = ?", courseID).Delete(&types.Module{}).Error
}
