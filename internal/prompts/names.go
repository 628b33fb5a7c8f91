package prompts

type PromptName string

const (
	PromptCourseOutline  PromptName = "course_outline"
	PromptRoadmapOutline PromptName = "roadmap_outline"
	PromptQuiz           PromptName = "quiz_generation"
	PromptLessonStream   PromptName = "lesson_stream"
	PromptChat           PromptName = "chat_respond"
)
