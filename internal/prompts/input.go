package prompts

// Input is a superset of the fields any prompt reads.
// Missing fields render as empty strings.
type Input struct {
	// Course outline
	Topic        string
	Level        string
	CustomPrompt string
	// Roadmap
	RoadmapName string
	// Quiz
	LessonName string
	// Lesson stream and chat
	LessonTitle string
	ModuleTitle string
	CourseTitle string
}
