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

type RoadmapNodeRepo interface {
	GetByNodeID(dbc dbctx.Context, roadmapID uuid.UUID, nodeID string) (*types.RoadmapNode, error)
	ListStatuses(dbc dbctx.Context, roadmapID uuid.UUID) ([]string, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
	SetCourse(dbc dbctx.Context, id uuid.UUID, courseID uuid.UUID) error
}

type roadmapNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoadmapNodeRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapNodeRepo {
	return &roadmapNodeRepo{db: db, log: baseLog.With("repo", "RoadmapNodeRepo")}
}

func (r *roadmapNodeRepo) GetByNodeID(dbc dbctx.Context, roadmapID uuid.UUID, nodeID string) (*types.RoadmapNode, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if roadmapID == uuid.Nil || nodeID == "" {
		return nil, nil
	}
	var n types.RoadmapNode
	err := transaction.WithContext(dbc.Ctx).
		Where("roadmap_id = ? AND node_id = ?", roadmapID, nodeID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *roadmapNodeRepo) ListStatuses(dbc dbctx.Context, roadmapID uuid.UUID) ([]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []string
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.RoadmapNode{}).
		Where("roadmap_id = ?", roadmapID).
		Pluck("status", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *roadmapNodeRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.RoadmapNode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *roadmapNodeRepo) SetCourse(dbc dbctx.Context, id uuid.UUID, courseID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.RoadmapNode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"course_id": courseID, "updated_at": time.Now().UTC()}).Error
}
