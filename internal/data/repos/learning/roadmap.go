package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type RoadmapRepo interface {
	Create(dbc dbctx.Context, roadmaps []*types.Roadmap) ([]*types.Roadmap, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Roadmap, error)
	GetByTaskID(dbc dbctx.Context, taskID string) (*types.Roadmap, error)
	GetWithNodes(dbc dbctx.Context, id uuid.UUID) (*types.Roadmap, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Roadmap, error)
	SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
	UpdateStatusIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error)
	ReplaceGraph(dbc dbctx.Context, roadmap *types.Roadmap, nodes []*types.RoadmapNode) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Count(dbc dbctx.Context) (int64, error)
}

type roadmapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRoadmapRepo(db *gorm.DB, baseLog *logger.Logger) RoadmapRepo {
	return &roadmapRepo{db: db, log: baseLog.With("repo", "RoadmapRepo")}
}

func (r *roadmapRepo) Create(dbc dbctx.Context, roadmaps []*types.Roadmap) ([]*types.Roadmap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(roadmaps) == 0 {
		return []*types.Roadmap{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&roadmaps).Error; err != nil {
		return nil, err
	}
	return roadmaps, nil
}

func (r *roadmapRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Roadmap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rm types.Roadmap
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&rm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *roadmapRepo) GetByTaskID(dbc dbctx.Context, taskID string) (*types.Roadmap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if taskID == "" {
		return nil, nil
	}
	var rm types.Roadmap
	err := transaction.WithContext(dbc.Ctx).Where("task_id = ?", taskID).First(&rm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *roadmapRepo) GetWithNodes(dbc dbctx.Context, id uuid.UUID) (*types.Roadmap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rm types.Roadmap
	err := transaction.WithContext(dbc.Ctx).
		Preload("Nodes", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Where("id = ?", id).
		First(&rm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *roadmapRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Roadmap, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Roadmap
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

func (r *roadmapRepo) SetTaskID(dbc dbctx.Context, id uuid.UUID, taskID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Roadmap{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"task_id": taskID, "updated_at": time.Now().UTC()}).Error
}

func (r *roadmapRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Roadmap{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *roadmapRepo) UpdateStatusIf(dbc dbctx.Context, id uuid.UUID, from []string, to string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return updateStatusIf(transaction.WithContext(dbc.Ctx), &types.Roadmap{}, id, from, to)
}

// ReplaceGraph overwrites the roadmap header and edges and swaps its nodes for the given set.
func (r *roadmapRepo) ReplaceGraph(dbc dbctx.Context, roadmap *types.Roadmap, nodes []*types.RoadmapNode) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if roadmap == nil || roadmap.ID == uuid.Nil {
		return errors.New("ReplaceGraph: missing roadmap")
	}
	edges := roadmap.Edges
	if len(edges) == 0 {
		edges = datatypes.JSON([]byte("[]"))
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("roadmap_id = ?", roadmap.ID).Delete(&types.RoadmapNode{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&types.Roadmap{}).
			Where("id = ?", roadmap.ID).
			Updates(map[string]interface{}{
				"name":        roadmap.Name,
				"description": roadmap.Description,
				"edges":       edges,
				"updated_at":  time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		for _, n := range nodes {
			if n == nil {
				continue
			}
			n.ID = uuid.Nil
			n.RoadmapID = roadmap.ID
			if err := tx.Create(n).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the roadmap and its nodes. Courses generated from it are kept and unlinked.
func (r *roadmapRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("roadmap_id = ?", id).Delete(&types.RoadmapNode{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&types.Course{}).
			Where("roadmap_id = ?", id).
			Updates(map[string]interface{}{"roadmap_id": nil, "roadmap_node_id": nil}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&types.Roadmap{}).Error
	})
}

func (r *roadmapRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).Model(&types.Roadmap{}).Count(&n).Error
	return n, err
}
