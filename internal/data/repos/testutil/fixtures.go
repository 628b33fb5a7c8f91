package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string, mutate ...func(*types.User)) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
	}
	for _, m := range mutate {
		m(u)
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedCourseTree creates a NOT_STARTED course with one module holding one NOT_GENERATED lesson.
func SeedCourseTree(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Course, *types.Module, *types.Lesson) {
	tb.Helper()
	c := &types.Course{UserID: userID, Title: "Go", Status: learning.StatusNotStarted}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	m := &types.Module{CourseID: c.ID, Title: "Basics", Status: learning.StatusNotGenerated}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed module: %v", err)
	}
	l := &types.Lesson{ModuleID: m.ID, UserID: userID, Title: "Variables", Status: learning.StatusNotGenerated}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return c, m, l
}

func SeedRoadmap(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, nodeIDs ...string) *types.Roadmap {
	tb.Helper()
	rm := &types.Roadmap{UserID: userID, Name: "Backend", Status: learning.StatusNotStarted}
	if err := tx.WithContext(ctx).Create(rm).Error; err != nil {
		tb.Fatalf("seed roadmap: %v", err)
	}
	for i, id := range nodeIDs {
		n := &types.RoadmapNode{RoadmapID: rm.ID, NodeID: id, Label: id, OrderIndex: i}
		if err := tx.WithContext(ctx).Create(n).Error; err != nil {
			tb.Fatalf("seed roadmap node: %v", err)
		}
		rm.Nodes = append(rm.Nodes, n)
	}
	return rm
}
