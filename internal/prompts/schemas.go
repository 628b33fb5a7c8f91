package prompts

func stringSchema() map[string]any { return map[string]any{"type": "string"} }

func nonEmptyStringSchema() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func intSchema() map[string]any { return map[string]any{"type": "integer"} }

func boolSchema() map[string]any { return map[string]any{"type": "boolean"} }

func enumSchema(values ...string) map[string]any {
	arr := make([]any, 0, len(values))
	for _, v := range values {
		arr = append(arr, v)
	}
	return map[string]any{"type": "string", "enum": arr}
}

func arraySchema(items map[string]any, minItems int) map[string]any {
	s := map[string]any{"type": "array", "items": items}
	if minItems > 0 {
		s["minItems"] = minItems
	}
	return s
}

// objectSchema requires every property and forbids extras, as strict mode demands.
func objectSchema(properties map[string]any) map[string]any {
	required := make([]string, 0, len(properties))
	for k := range properties {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func CourseOutlineSchema() map[string]any {
	lesson := objectSchema(map[string]any{
		"title": nonEmptyStringSchema(),
	})
	module := objectSchema(map[string]any{
		"title":   nonEmptyStringSchema(),
		"lessons": arraySchema(lesson, 0),
	})
	return objectSchema(map[string]any{
		"refused":        boolSchema(),
		"refusal_reason": stringSchema(),
		"title":          stringSchema(),
		"description":    stringSchema(),
		"modules":        arraySchema(module, 0),
	})
}

var RoadmapNodeTypes = []string{
	"prerequisite", "core", "tooling", "specialization", "project",
	"portfolio", "certification", "soft-skill", "capstone",
}

func RoadmapOutlineSchema() map[string]any {
	node := objectSchema(map[string]any{
		"node_id":     nonEmptyStringSchema(),
		"label":       nonEmptyStringSchema(),
		"description": stringSchema(),
		"type":        enumSchema(RoadmapNodeTypes...),
		"branch":      stringSchema(),
		"order_index": intSchema(),
	})
	edge := objectSchema(map[string]any{
		"source": nonEmptyStringSchema(),
		"target": nonEmptyStringSchema(),
	})
	return objectSchema(map[string]any{
		"roadmap_name": stringSchema(),
		"description":  stringSchema(),
		"nodes":        arraySchema(node, 1),
		"edges":        arraySchema(edge, 0),
	})
}

func QuizSchema() map[string]any {
	question := objectSchema(map[string]any{
		"question": nonEmptyStringSchema(),
		"options": map[string]any{
			"type":     "array",
			"items":    stringSchema(),
			"minItems": 2,
		},
		"correct_option_index": map[string]any{"type": "integer", "minimum": 0},
		"explanation":          stringSchema(),
	})
	return objectSchema(map[string]any{
		"questions": arraySchema(question, 1),
	})
}
