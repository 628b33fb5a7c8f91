package generation

import (
	"strings"

	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
)

type Kind string

const (
	KindCourseOutline  Kind = "course_outline"
	KindRoadmapOutline Kind = "roadmap_outline"
	KindQuiz           Kind = "quiz_generation"
	KindLessonStream   Kind = "lesson_stream"
	KindChat           Kind = "chat_stream"
)

var aliases = map[string]Kind{
	"course":  KindCourseOutline,
	"roadmap": KindRoadmapOutline,
	"quiz":    KindQuiz,
	"lesson":  KindLessonStream,
	"chat":    KindChat,
}

// ParseKind normalizes a route segment into a Kind. Unknown names pass through
// unchanged and are rejected by the registry.
func ParseKind(raw string) Kind {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if k, ok := aliases[raw]; ok {
		return k
	}
	return Kind(raw)
}

// Form says where a task's result lives.
type Form int

const (
	// FormDurable results are relational rows owned by the user.
	FormDurable Form = iota
	// FormEphemeral results are short-lived redis mailbox entries.
	FormEphemeral
	// FormStream results are token streams relayed to a waiting client.
	FormStream
)

// Delivery is fixed per kind and decides how failed attempts are treated.
type Delivery int

const (
	AtLeastOnce Delivery = iota
	AtMostOnce
)

func (d Delivery) MaxAttempts() int {
	if d == AtMostOnce {
		return 1
	}
	return 4
}

func (d Delivery) String() string {
	if d == AtMostOnce {
		return "at_most_once"
	}
	return "at_least_once"
}

type Spec struct {
	Kind       Kind
	Cost       int
	Form       Form
	Delivery   Delivery
	EntityType string
}

// pollStatus maps job_run statuses onto the lowercase names clients poll for.
func pollStatus(job *jobdomain.JobRun) string {
	if job == nil {
		return "pending"
	}
	switch job.Status {
	case jobdomain.StatusRunning:
		return "started"
	case jobdomain.StatusRetrying:
		return "retry"
	case jobdomain.StatusSucceeded:
		return "success"
	case jobdomain.StatusFailed:
		return "failure"
	default:
		return "pending"
	}
}
