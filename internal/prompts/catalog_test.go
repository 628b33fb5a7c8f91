package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalogueLoads(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	for _, name := range []PromptName{PromptCourseOutline, PromptRoadmapOutline, PromptQuiz, PromptLessonStream, PromptChat} {
		_, ok := c.prompts[name]
		assert.True(t, ok, "missing prompt %s", name)
	}
}

func TestBuildCourseOutline(t *testing.T) {
	c := MustLoad()
	p, err := c.Build(PromptCourseOutline, Input{Topic: "Go concurrency", Level: "beginner", CustomPrompt: "focus on channels"})
	require.NoError(t, err)
	assert.Equal(t, "course_outline", p.SchemaName)
	assert.NotNil(t, p.Schema)
	assert.Contains(t, p.User, "TOPIC: Go concurrency")
	assert.Contains(t, p.User, "LEVEL: Beginner")
	assert.Contains(t, p.User, "focus on channels")

	p, err = c.Build(PromptCourseOutline, Input{Topic: "Rust", Level: "advanced"})
	require.NoError(t, err)
	assert.NotContains(t, p.User, "CUSTOM REQUIREMENTS")
}

func TestBuildLessonStreamHasNoSchema(t *testing.T) {
	p, err := MustLoad().Build(PromptLessonStream, Input{LessonTitle: "Goroutines", CourseTitle: "Go"})
	require.NoError(t, err)
	assert.Empty(t, p.SchemaName)
	assert.Nil(t, p.Schema)
	assert.Contains(t, p.User, "Lesson title: Goroutines")
	assert.NotContains(t, p.User, "module")
}

func TestBuildUnknownPrompt(t *testing.T) {
	_, err := MustLoad().Build("nope", Input{})
	require.Error(t, err)
}

func TestValidateQuiz(t *testing.T) {
	c := MustLoad()
	good := map[string]any{"questions": []any{map[string]any{
		"question":             "What is a goroutine?",
		"options":              []any{"a", "b", "c", "d"},
		"correct_option_index": 1,
		"explanation":          "b",
	}}}
	require.NoError(t, c.Validate(PromptQuiz, good))

	bad := map[string]any{"questions": []any{map[string]any{
		"question": "missing fields",
		"options":  []any{"only one"},
	}}}
	err := c.Validate(PromptQuiz, bad)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.NotEmpty(t, ve.Issues)
}

func TestValidateRoadmapRejectsUnknownNodeType(t *testing.T) {
	obj := map[string]any{
		"roadmap_name": "Backend",
		"description":  "d",
		"nodes": []any{map[string]any{
			"node_id": "1", "label": "HTTP", "description": "", "type": "wizardry", "branch": "", "order_index": 1,
		}},
		"edges": []any{},
	}
	err := MustLoad().Validate(PromptRoadmapOutline, obj)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "type"))
}

func TestParseRejectsUnknownSchema(t *testing.T) {
	_, err := Parse([]byte("prompts:\n  x:\n    version: 1\n    schema_name: nope\n    user: hi\n"))
	require.Error(t, err)
}
