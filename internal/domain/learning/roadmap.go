package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
)

type Roadmap struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *user.User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Name         string         `gorm:"column:name;not null" json:"roadmap_name"`
	Description  string         `gorm:"column:description;type:text" json:"description"`
	CustomPrompt string         `gorm:"column:custom_prompt;type:text" json:"custom_prompt,omitempty"`
	TaskID       *string        `gorm:"column:task_id;index" json:"task_id,omitempty"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Edges        datatypes.JSON `gorm:"column:edges" json:"edges"`

	Nodes []*RoadmapNode `gorm:"foreignKey:RoadmapID;constraint:OnDelete:CASCADE" json:"nodes,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Roadmap) TableName() string { return "roadmap" }

func (r *Roadmap) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusGenerating
	}
	if len(r.Edges) == 0 {
		r.Edges = datatypes.JSON([]byte("[]"))
	}
	return nil
}

type RoadmapNode struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RoadmapID   uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_roadmap_node_key" json:"roadmap_id"`
	NodeID      string     `gorm:"column:node_id;not null;uniqueIndex:idx_roadmap_node_key" json:"node_id"`
	Label       string     `gorm:"column:label;not null" json:"label"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	Type        string     `gorm:"column:type" json:"type"`
	Branch      string     `gorm:"column:branch" json:"branch,omitempty"`
	OrderIndex  int        `gorm:"column:order_index;not null;default:0" json:"order_index"`
	Status      string     `gorm:"column:status;not null" json:"status"`
	CourseID    *uuid.UUID `gorm:"type:uuid;column:course_id" json:"course_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (RoadmapNode) TableName() string { return "roadmap_node" }

func (n *RoadmapNode) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = StatusNotStarted
	}
	return nil
}

// AggregateNodeStatus derives a roadmap status from its node statuses:
// all NOT_STARTED stays NOT_STARTED, all COMPLETED is COMPLETED, anything else is IN_PROGRESS.
func AggregateNodeStatus(statuses []string) string {
	if len(statuses) == 0 {
		return StatusNotStarted
	}
	allNotStarted, allCompleted := true, true
	for _, s := range statuses {
		if s != StatusNotStarted {
			allNotStarted = false
		}
		if s != StatusCompleted {
			allCompleted = false
		}
	}
	switch {
	case allNotStarted:
		return StatusNotStarted
	case allCompleted:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}
