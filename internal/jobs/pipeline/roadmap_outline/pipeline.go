package roadmap_outline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/domain/learning"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/pipeline/structured"
	jobrt "github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/dbctx"
	"github.com/yungbote/coursebuilder-backend/internal/prompts"
)

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type graph struct {
	RoadmapName string `json:"roadmap_name"`
	Description string `json:"description"`
	Nodes       []struct {
		NodeID      string `json:"node_id"`
		Label       string `json:"label"`
		Description string `json:"description"`
		Type        string `json:"type"`
		Branch      string `json:"branch"`
		OrderIndex  int    `json:"order_index"`
	} `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	roadmapID, ok := jc.PayloadUUID("roadmap_id")
	if !ok && jc.Job.EntityID != nil {
		roadmapID, ok = *jc.Job.EntityID, true
	}
	if !ok || roadmapID == uuid.Nil {
		jc.Fail("validate", jobrt.Permanent(fmt.Errorf("missing roadmap_id")))
		return nil
	}
	rm, err := p.roadmaps.GetByID(dbctx.Bg(jc.Ctx), roadmapID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if rm == nil {
		jc.Fail("load", jobrt.Permanent(fmt.Errorf("roadmap %s not found", roadmapID)))
		return nil
	}

	jc.Progress("generate", 10, "Generating roadmap")
	name := jc.PayloadString("roadmap_name")
	if name == "" {
		name = rm.Name
	}
	custom := jc.PayloadString("custom_prompt")
	if custom == "" {
		custom = rm.CustomPrompt
	}
	var out graph
	prompt, err := structured.Generate(jc.Ctx, p.ai, p.prompts, prompts.PromptRoadmapOutline, prompts.Input{
		RoadmapName:  name,
		CustomPrompt: custom,
	}, &out)
	if err != nil {
		jc.Fail("generate", err)
		return nil
	}

	nodes, edges, err := buildGraph(out)
	if err != nil {
		jc.Fail("generate", err)
		return nil
	}
	rawEdges, err := json.Marshal(edges)
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	jc.Progress("persist", 80, "Saving roadmap nodes")
	if strings.TrimSpace(out.RoadmapName) != "" {
		rm.Name = strings.TrimSpace(out.RoadmapName)
	}
	rm.Description = strings.TrimSpace(out.Description)
	rm.Edges = datatypes.JSON(rawEdges)
	err = p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if err := p.roadmaps.ReplaceGraph(dbc, rm, nodes); err != nil {
			return fmt.Errorf("replace graph: %w", err)
		}
		if _, err := p.roadmaps.UpdateStatusIf(dbc, rm.ID, []string{learning.StatusGenerating}, learning.StatusNotStarted); err != nil {
			return fmt.Errorf("mark roadmap ready: %w", err)
		}
		return nil
	})
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}

	p.log.Info("Roadmap generated", "roadmap_id", rm.ID, "nodes", len(nodes), "edges", len(edges))
	jc.Succeed("done", map[string]any{
		"roadmap_id":     rm.ID,
		"nodes":          len(nodes),
		"edges":          len(edges),
		"prompt_version": prompt.Version,
	})
	return nil
}

// buildGraph drops duplicate node ids and edges that reference unknown nodes or loop on themselves.
func buildGraph(g graph) ([]*types.RoadmapNode, []Edge, error) {
	seen := map[string]bool{}
	nodes := make([]*types.RoadmapNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		id := strings.TrimSpace(n.NodeID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		nodes = append(nodes, &types.RoadmapNode{
			NodeID:      id,
			Label:       strings.TrimSpace(n.Label),
			Description: strings.TrimSpace(n.Description),
			Type:        strings.TrimSpace(n.Type),
			Branch:      strings.TrimSpace(n.Branch),
			OrderIndex:  n.OrderIndex,
			Status:      learning.StatusNotStarted,
		})
	}
	if len(nodes) == 0 {
		return nil, nil, errors.New("roadmap has no nodes")
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].OrderIndex < nodes[j].OrderIndex })

	edges := make([]Edge, 0, len(g.Edges))
	dup := map[Edge]bool{}
	for _, e := range g.Edges {
		e.Source, e.Target = strings.TrimSpace(e.Source), strings.TrimSpace(e.Target)
		if !seen[e.Source] || !seen[e.Target] || e.Source == e.Target || dup[e] {
			continue
		}
		dup[e] = true
		edges = append(edges, e)
	}
	return nodes, edges, nil
}
