package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/domain/user"
)

type Course struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	RoadmapID     *uuid.UUID `gorm:"type:uuid;column:roadmap_id;index" json:"roadmap_id,omitempty"`
	RoadmapNodeID *string    `gorm:"column:roadmap_node_id" json:"roadmap_node_id,omitempty"`

	Title        string  `gorm:"column:title;not null" json:"title"`
	Description  string  `gorm:"column:description;type:text" json:"description"`
	Level        string  `gorm:"column:level" json:"level"`
	CustomPrompt string  `gorm:"column:custom_prompt;type:text" json:"custom_prompt,omitempty"`
	TaskID       *string `gorm:"column:task_id;index" json:"task_id,omitempty"`
	Status       string  `gorm:"column:status;not null;index" json:"status"`

	Modules []*Module `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"modules,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusGenerating
	}
	return nil
}

type Module struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID   uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title      string    `gorm:"column:title;not null" json:"title"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0" json:"order_index"`
	Status     string    `gorm:"column:status;not null" json:"status"`

	Lessons []*Lesson `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE" json:"lessons,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Module) TableName() string { return "course_module" }

func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = StatusNotGenerated
	}
	return nil
}

type Lesson struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID   uuid.UUID `gorm:"type:uuid;not null;index" json:"module_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title      string    `gorm:"column:title;not null" json:"title"`
	Content    string    `gorm:"column:content;type:text" json:"content"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0" json:"order_index"`
	Status     string    `gorm:"column:status;not null" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Lesson) TableName() string { return "lesson" }

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = StatusNotGenerated
	}
	return nil
}
