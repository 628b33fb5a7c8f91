package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/coursebuilder-backend/internal/data/repos"
	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

var validLevels = map[string]bool{"beginner": true, "intermediate": true, "advanced": true}

type CourseParams struct {
	Topic         string     `json:"topic"`
	Level         string     `json:"level"`
	CustomPrompt  string     `json:"custom_prompt"`
	RoadmapID     *uuid.UUID `json:"roadmap_id"`
	RoadmapNodeID string     `json:"roadmap_node_id"`
}

type RoadmapParams struct {
	RoadmapName  string `json:"roadmap_name"`
	CustomPrompt string `json:"custom_prompt"`
}

type QuizParams struct {
	LessonName string `json:"lesson_name"`
}

type ChatParams struct {
	SessionID string     `json:"session_id"`
	Message   string     `json:"message"`
	CourseID  *uuid.UUID `json:"course_id"`
}

// Deps is everything the built-in tasks need.
type Deps struct {
	Users        repos.UserRepo
	Courses      repos.CourseRepo
	Modules      repos.ModuleRepo
	Lessons      repos.LessonRepo
	Roadmaps     repos.RoadmapRepo
	RoadmapNodes repos.RoadmapNodeRepo
	Jobs         repos.JobRunRepo
	Mailbox      *Mailbox
	Broker       streaming.Broker
}

// NewDefaultRegistry registers every built-in generation kind.
func NewDefaultRegistry(d Deps) (*Registry, error) {
	r := NewRegistry()
	for _, t := range []Task{
		NewCourseOutlineTask(d),
		NewRoadmapOutlineTask(d),
		NewQuizTask(d),
		NewChatTask(d),
		NewLessonStreamTask(d),
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apierr.BadRequest("invalid_params", fmt.Errorf("decode params: %w", err))
	}
	return nil
}

func invalid(msg string) error {
	return apierr.BadRequest("invalid_params", errors.New(msg))
}

func NewCourseOutlineTask(d Deps) Task {
	return &durableTask{
		spec:  Spec{Kind: KindCourseOutline, Cost: 10, Form: FormDurable, Delivery: AtLeastOnce, EntityType: "course"},
		store: courseStore{courses: d.Courses},
		jobs:  d.Jobs,
		idKey: "course_id",
		create: func(dbc dbctx.Context, req Request) (uuid.UUID, map[string]any, error) {
			var p CourseParams
			if err := decodeParams(req.Params, &p); err != nil {
				return uuid.Nil, nil, err
			}
			p.Topic = strings.TrimSpace(p.Topic)
			p.Level = strings.ToLower(strings.TrimSpace(p.Level))
			p.CustomPrompt = strings.TrimSpace(p.CustomPrompt)
			p.RoadmapNodeID = strings.TrimSpace(p.RoadmapNodeID)
			if p.Topic == "" {
				return uuid.Nil, nil, invalid("topic is required")
			}
			if p.Level == "" {
				p.Level = "beginner"
			}
			if !validLevels[p.Level] {
				return uuid.Nil, nil, invalid("level must be beginner, intermediate or advanced")
			}
			if p.RoadmapNodeID != "" && p.RoadmapID == nil {
				return uuid.Nil, nil, invalid("roadmap_node_id requires roadmap_id")
			}

			var node *types.RoadmapNode
			if p.RoadmapID != nil {
				rm, err := d.Roadmaps.GetByID(dbc, *p.RoadmapID)
				if err != nil {
					return uuid.Nil, nil, err
				}
				if rm == nil || rm.UserID != req.UserID {
					return uuid.Nil, nil, apierr.NotFound("roadmap_not_found", errors.New("roadmap not found"))
				}
				if p.RoadmapNodeID != "" {
					if node, err = d.RoadmapNodes.GetByNodeID(dbc, rm.ID, p.RoadmapNodeID); err != nil {
						return uuid.Nil, nil, err
					}
					if node == nil {
						return uuid.Nil, nil, apierr.NotFound("roadmap_node_not_found", errors.New("roadmap node not found"))
					}
				}
			}

			course := &types.Course{
				UserID:       req.UserID,
				RoadmapID:    p.RoadmapID,
				Title:        p.Topic,
				Level:        p.Level,
				CustomPrompt: p.CustomPrompt,
			}
			if p.RoadmapNodeID != "" {
				nodeID := p.RoadmapNodeID
				course.RoadmapNodeID = &nodeID
			}
			if _, err := d.Courses.Create(dbc, []*types.Course{course}); err != nil {
				return uuid.Nil, nil, err
			}
			if node != nil {
				if err := d.RoadmapNodes.SetCourse(dbc, node.ID, course.ID); err != nil {
					return uuid.Nil, nil, err
				}
			}
			return course.ID, map[string]any{
				"topic":         p.Topic,
				"level":         p.Level,
				"custom_prompt": p.CustomPrompt,
			}, nil
		},
	}
}

func NewRoadmapOutlineTask(d Deps) Task {
	return &durableTask{
		spec:  Spec{Kind: KindRoadmapOutline, Cost: 10, Form: FormDurable, Delivery: AtLeastOnce, EntityType: "roadmap"},
		store: roadmapStore{roadmaps: d.Roadmaps},
		jobs:  d.Jobs,
		idKey: "roadmap_id",
		create: func(dbc dbctx.Context, req Request) (uuid.UUID, map[string]any, error) {
			var p RoadmapParams
			if err := decodeParams(req.Params, &p); err != nil {
				return uuid.Nil, nil, err
			}
			p.RoadmapName = strings.TrimSpace(p.RoadmapName)
			p.CustomPrompt = strings.TrimSpace(p.CustomPrompt)
			if p.RoadmapName == "" {
				return uuid.Nil, nil, invalid("roadmap_name is required")
			}
			rm := &types.Roadmap{
				UserID:       req.UserID,
				Name:         p.RoadmapName,
				CustomPrompt: p.CustomPrompt,
			}
			if _, err := d.Roadmaps.Create(dbc, []*types.Roadmap{rm}); err != nil {
				return uuid.Nil, nil, err
			}
			return rm.ID, map[string]any{
				"roadmap_name":  p.RoadmapName,
				"custom_prompt": p.CustomPrompt,
			}, nil
		},
	}
}

func NewQuizTask(d Deps) Task {
	return &ephemeralTask{
		spec:        Spec{Kind: KindQuiz, Cost: 5, Form: FormEphemeral, Delivery: AtLeastOnce, EntityType: "quiz"},
		slot:        QuizSlot,
		mailbox:     d.Mailbox,
		jobs:        d.Jobs,
		readyStatus: "done",
		field:       "quiz",
		rawJSON:     true,
		payload: func(dbc dbctx.Context, req Request) (map[string]any, error) {
			var p QuizParams
			if err := decodeParams(req.Params, &p); err != nil {
				return nil, err
			}
			p.LessonName = strings.TrimSpace(p.LessonName)
			if p.LessonName == "" {
				return nil, invalid("lesson_name is required")
			}
			return map[string]any{"lesson_name": p.LessonName}, nil
		},
	}
}

// NewChatTask is unmetered.
func NewChatTask(d Deps) Task {
	return &ephemeralTask{
		spec:        Spec{Kind: KindChat, Cost: 0, Form: FormEphemeral, Delivery: AtMostOnce, EntityType: "chat"},
		slot:        ChatSlot,
		mailbox:     d.Mailbox,
		jobs:        d.Jobs,
		readyStatus: "ready",
		field:       "reply",
		payload: func(dbc dbctx.Context, req Request) (map[string]any, error) {
			var p ChatParams
			if err := decodeParams(req.Params, &p); err != nil {
				return nil, err
			}
			p.SessionID = strings.TrimSpace(p.SessionID)
			p.Message = strings.TrimSpace(p.Message)
			if p.SessionID == "" || p.Message == "" {
				return nil, invalid("session_id and message are required")
			}
			payload := map[string]any{"session_id": p.SessionID, "message": p.Message}
			if p.CourseID != nil {
				c, err := d.Courses.GetByID(dbc, *p.CourseID)
				if err != nil {
					return nil, err
				}
				if c == nil || c.UserID != req.UserID {
					return nil, apierr.NotFound("course_not_found", errors.New("course not found"))
				}
				payload["course_id"] = c.ID.String()
			}
			return payload, nil
		},
	}
}

func NewLessonStreamTask(d Deps) Task {
	return &lessonStreamTask{
		lessons: d.Lessons,
		modules: d.Modules,
		courses: d.Courses,
		jobs:    d.Jobs,
		broker:  d.Broker,
	}
}
