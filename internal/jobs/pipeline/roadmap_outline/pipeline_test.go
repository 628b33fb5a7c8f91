package roadmap_outline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobdomain "github.com/yungbote/coursebuilder-backend/internal/domain/jobs"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/platform/openai/openaitest"
)

func node(id, label string, order int) map[string]any {
	return map[string]any{"node_id": id, "label": label, "description": "d", "type": "core", "branch": "", "order_index": order}
}

func TestRoadmapOutlinePersistsGraph(t *testing.T) {
	env := pipelinetest.New(t)
	ai := &openaitest.Fake{JSON: map[string]any{
		"roadmap_name": "Backend Engineer",
		"description":  "Servers and data.",
		"nodes": []any{
			node("2", "HTTP", 2),
			node("1", "Linux", 1),
			node("1", "Linux again", 3),
			node("3", "Databases", 3),
		},
		"edges": []any{
			map[string]any{"source": "1", "target": "2"},
			map[string]any{"source": "2", "target": "3"},
			map[string]any{"source": "2", "target": "3"},
			map[string]any{"source": "2", "target": "9"},
			map[string]any{"source": "3", "target": "3"},
		},
	}}
	p := New(env.DB, logger.Nop(), ai, env.Prompts, env.Deps.Roadmaps)

	u := env.User(t)
	raw, _ := json.Marshal(map[string]any{"roadmap_name": "Backend"})
	acc, err := env.Dispatcher.Dispatch(context.Background(), "roadmap_outline", generation.Request{UserID: u.ID, Params: raw})
	require.NoError(t, err)

	job := env.Run(t, p, acc.TaskID)
	require.Equal(t, jobdomain.StatusSucceeded, job.Status, job.Error)
	assert.Contains(t, ai.LastCall().User, "ROADMAP: Backend")

	rm, err := env.Deps.Roadmaps.GetWithNodes(dbctx.Bg(context.Background()), *acc.EntityID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusNotStarted, rm.Status)
	assert.Equal(t, "Backend Engineer", rm.Name)
	require.Len(t, rm.Nodes, 3)
	for _, n := range rm.Nodes {
		assert.Equal(t, learning.StatusNotStarted, n.Status)
	}

	var edges []Edge
	require.NoError(t, json.Unmarshal(rm.Edges, &edges))
	assert.Equal(t, []Edge{{Source: "1", Target: "2"}, {Source: "2", Target: "3"}}, edges)

	st, err := env.Bridge.Status(context.Background(), "roadmap", u.ID, acc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", st["status"])
	assert.Equal(t, rm.ID, st["roadmap_id"])
}

func TestBuildGraphRejectsEmpty(t *testing.T) {
	_, _, err := buildGraph(graph{})
	assert.Error(t, err)
}
