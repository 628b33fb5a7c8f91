package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

// rows a client may move; a GENERATING row belongs to its running job
var settableFrom = []string{
	learning.StatusNotGenerated,
	learning.StatusNotStarted,
	learning.StatusInProgress,
	learning.StatusCompleted,
	learning.StatusFailed,
}

type LearningService interface {
	ListCourses(dbc dbctx.Context) ([]*types.Course, error)
	GetCourse(dbc dbctx.Context, courseID uuid.UUID) (*types.Course, error)
	DeleteCourse(dbc dbctx.Context, courseID uuid.UUID) error
	SetCourseStatus(dbc dbctx.Context, courseID uuid.UUID, status string) (*types.Course, error)
	SetModuleStatus(dbc dbctx.Context, moduleID uuid.UUID, status string) (*types.Module, error)

	GetLesson(dbc dbctx.Context, lessonID uuid.UUID) (*types.Lesson, error)
	DeleteLesson(dbc dbctx.Context, lessonID uuid.UUID) error
	SetLessonStatus(dbc dbctx.Context, lessonID uuid.UUID, status string) (*types.Lesson, error)

	ListRoadmaps(dbc dbctx.Context) ([]*types.Roadmap, error)
	GetRoadmap(dbc dbctx.Context, roadmapID uuid.UUID) (*types.Roadmap, error)
	DeleteRoadmap(dbc dbctx.Context, roadmapID uuid.UUID) error
	SetRoadmapStatus(dbc dbctx.Context, roadmapID uuid.UUID, status string) (*types.Roadmap, error)
	ListRoadmapCourses(dbc dbctx.Context, roadmapID uuid.UUID) ([]*types.Course, error)
	// SetNodeStatus updates one node and recomputes the roadmap status from all of its nodes.
	SetNodeStatus(dbc dbctx.Context, roadmapID uuid.UUID, nodeID string, status string) (*types.RoadmapNode, string, error)
	LinkNodeCourse(dbc dbctx.Context, roadmapID uuid.UUID, nodeID string, courseID uuid.UUID) (*types.RoadmapNode, error)
}

type learningService struct {
	db       *gorm.DB
	log      *logger.Logger
	courses  repos.CourseRepo
	modules  repos.ModuleRepo
	lessons  repos.LessonRepo
	roadmaps repos.RoadmapRepo
	nodes    repos.RoadmapNodeRepo
}

func NewLearningService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	modules repos.ModuleRepo,
	lessons repos.LessonRepo,
	roadmaps repos.RoadmapRepo,
	nodes repos.RoadmapNodeRepo,
) LearningService {
	return &learningService{
		db:       db,
		log:      baseLog.With("service", "LearningService"),
		courses:  courses,
		modules:  modules,
		lessons:  lessons,
		roadmaps: roadmaps,
		nodes:    nodes,
	}
}

func parseSettableStatus(status string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(status))
	if !learning.UserSettableStatus(s) {
		return "", apierr.BadRequest("invalid_status", fmt.Errorf("status must be one of %s, %s, %s",
			learning.StatusNotStarted, learning.StatusInProgress, learning.StatusCompleted))
	}
	return s, nil
}

func errStatusLocked(what string) error {
	return apierr.Conflict("status_locked", fmt.Errorf("%s status is managed by generation", what))
}

func (s *learningService) ownedCourse(dbc dbctx.Context, courseID uuid.UUID) (*types.Course, error) {
	userID, err := requestUserID(dbc)
	if err != nil {
		return nil, err
	}
	c, err := s.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.UserID != userID {
		return nil, notFound("course")
	}
	return c, nil
}

func (s *learningService) ownedRoadmap(dbc dbctx.Context, roadmapID uuid.UUID) (*types.Roadmap, error) {
	userID, err := requestUserID(dbc)
	if err != nil {
		return nil, err
	}
	r, err := s.roadmaps.GetByID(dbc, roadmapID)
	if err != nil {
		return nil, err
	}
	if r == nil || r.UserID != userID {
		return nil, notFound("roadmap")
	}
	return r, nil
}

func (s *learningService) ownedLesson(dbc dbctx.Context, lessonID uuid.UUID) (*types.Lesson, error) {
	userID, err := requestUserID(dbc)
	if err != nil {
		return nil, err
	}
	l, err := s.lessons.GetByID(dbc, lessonID)
	if err != nil {
		return nil, err
	}
	if l == nil || l.UserID != userID {
		return nil, notFound("lesson")
	}
	return l, nil
}

func (s *learningService) ListCourses(dbc dbctx.Context) ([]*types.Course, error) {
	userID, err := requestUserID(dbc)
	if err != nil {
		return nil, err
	}
	return s.courses.ListByUser(dbc, userID)
}

func (s *learningService) GetCourse(dbc dbctx.Context, courseID uuid.UUID) (*types.Course, error) {
	if _, err := s.ownedCourse(dbc, courseID); err != nil {
		return nil, err
	}
	return s.courses.GetWithOutline(dbc, courseID)
}

func (s *learningService) DeleteCourse(dbc dbctx.Context, courseID uuid.UUID) error {
	if _, err := s.ownedCourse(dbc, courseID); err != nil {
		return err
	}
	if err := s.courses.Delete(dbc, courseID); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	s.log.Info("Course deleted", "course_id", courseID)
	return nil
}

func (s *learningService) SetCourseStatus(dbc dbctx.Context, courseID uuid.UUID, status string) (*types.Course, error) {
	to, err := parseSettableStatus(status)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedCourse(dbc, courseID); err != nil {
		return nil, err
	}
	ok, err := s.courses.UpdateStatusIf(dbc, courseID, settableFrom, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errStatusLocked("course")
	}
	return s.courses.GetByID(dbc, courseID)
}

func (s *learningService) SetModuleStatus(dbc dbctx.Context, moduleID uuid.UUID, status string) (*types.Module, error) {
	to, err := parseSettableStatus(status)
	if err != nil {
		return nil, err
	}
	m, err := s.modules.GetByID(dbc, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, notFound("module")
	}
	if _, err := s.ownedCourse(dbc, m.CourseID); err != nil {
		if ae, ok := apierr.From(err); ok && ae.Status == http.StatusNotFound {
			return nil, notFound("module")
		}
		return nil, err
	}
	ok, err := s.modules.UpdateStatusIf(dbc, moduleID, settableFrom, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errStatusLocked("module")
	}
	return s.modules.GetByID(dbc, moduleID)
}

func (s *learningService) GetLesson(dbc dbctx.Context, lessonID uuid.UUID) (*types.Lesson, error) {
	return s.ownedLesson(dbc, lessonID)
}

func (s *learningService) DeleteLesson(dbc dbctx.Context, lessonID uuid.UUID) error {
	if _, err := s.ownedLesson(dbc, lessonID); err != nil {
		return err
	}
	return s.lessons.Delete(dbc, lessonID)
}

func (s *learningService) SetLessonStatus(dbc dbctx.Context, lessonID uuid.UUID, status string) (*types.Lesson, error) {
	to, err := parseSettableStatus(status)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedLesson(dbc, lessonID); err != nil {
		return nil, err
	}
	ok, err := s.lessons.UpdateStatusIf(dbc, lessonID, settableFrom, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errStatusLocked("lesson")
	}
	return s.lessons.GetByID(dbc, lessonID)
}

func (s *learningService) ListRoadmaps(dbc dbctx.Context) ([]*types.Roadmap, error) {
	userID, err := requestUserID(dbc)
	if err != nil {
		return nil, err
	}
	return s.roadmaps.ListByUser(dbc, userID)
}

func (s *learningService) GetRoadmap(dbc dbctx.Context, roadmapID uuid.UUID) (*types.Roadmap, error) {
	if _, err := s.ownedRoadmap(dbc, roadmapID); err != nil {
		return nil, err
	}
	return s.roadmaps.GetWithNodes(dbc, roadmapID)
}

func (s *learningService) DeleteRoadmap(dbc dbctx.Context, roadmapID uuid.UUID) error {
	if _, err := s.ownedRoadmap(dbc, roadmapID); err != nil {
		return err
	}
	if err := s.roadmaps.Delete(dbc, roadmapID); err != nil {
		return fmt.Errorf("delete roadmap: %w", err)
	}
	s.log.Info("Roadmap deleted", "roadmap_id", roadmapID)
	return nil
}

func (s *learningService) SetRoadmapStatus(dbc dbctx.Context, roadmapID uuid.UUID, status string) (*types.Roadmap, error) {
	to, err := parseSettableStatus(status)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedRoadmap(dbc, roadmapID); err != nil {
		return nil, err
	}
	ok, err := s.roadmaps.UpdateStatusIf(dbc, roadmapID, settableFrom, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errStatusLocked("roadmap")
	}
	return s.roadmaps.GetByID(dbc, roadmapID)
}

func (s *learningService) ListRoadmapCourses(dbc dbctx.Context, roadmapID uuid.UUID) ([]*types.Course, error) {
	r, err := s.ownedRoadmap(dbc, roadmapID)
	if err != nil {
		return nil, err
	}
	return s.courses.ListByRoadmap(dbc, r.UserID, r.ID)
}

func (s *learningService) SetNodeStatus(dbc dbctx.Context, roadmapID uuid.UUID, nodeID string, status string) (*types.RoadmapNode, string, error) {
	to, err := parseSettableStatus(status)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.ownedRoadmap(dbc, roadmapID); err != nil {
		return nil, "", err
	}

	var (
		node      *types.RoadmapNode
		aggregate string
	)
	err = s.inTx(dbc, func(inner dbctx.Context) error {
		n, err := s.nodes.GetByNodeID(inner, roadmapID, nodeID)
		if err != nil {
			return err
		}
		if n == nil {
			return notFound("roadmap_node")
		}
		if err := s.nodes.UpdateStatus(inner, n.ID, to); err != nil {
			return fmt.Errorf("update node status: %w", err)
		}
		n.Status = to
		node = n

		statuses, err := s.nodes.ListStatuses(inner, roadmapID)
		if err != nil {
			return err
		}
		aggregate = learning.AggregateNodeStatus(statuses)
		if _, err := s.roadmaps.UpdateStatusIf(inner, roadmapID, settableFrom, aggregate); err != nil {
			return fmt.Errorf("update roadmap status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return node, aggregate, nil
}

func (s *learningService) LinkNodeCourse(dbc dbctx.Context, roadmapID uuid.UUID, nodeID string, courseID uuid.UUID) (*types.RoadmapNode, error) {
	if _, err := s.ownedRoadmap(dbc, roadmapID); err != nil {
		return nil, err
	}
	if courseID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_course_id", errors.New("course_id is required"))
	}
	if _, err := s.ownedCourse(dbc, courseID); err != nil {
		return nil, err
	}
	n, err := s.nodes.GetByNodeID(dbc, roadmapID, nodeID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, notFound("roadmap_node")
	}
	if err := s.nodes.SetCourse(dbc, n.ID, courseID); err != nil {
		return nil, fmt.Errorf("link course: %w", err)
	}
	n.CourseID = &courseID
	return n, nil
}

// inTx reuses the caller's transaction when there is one.
func (s *learningService) inTx(dbc dbctx.Context, fn func(dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
