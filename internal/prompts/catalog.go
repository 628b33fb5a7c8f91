package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var catalogYAML []byte

// Prompt is a rendered prompt ready for the LLM client.
type Prompt struct {
	Name       PromptName
	Version    int
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

type promptDef struct {
	Version    int    `yaml:"version"`
	SchemaName string `yaml:"schema_name"`
	System     string `yaml:"system"`
	User       string `yaml:"user"`
}

type catalogFile struct {
	Prompts map[string]promptDef `yaml:"prompts"`
}

type compiled struct {
	name       PromptName
	version    int
	schemaName string
	schema     func() map[string]any
	validator  *gojsonschema.Schema
	system     *template.Template
	user       *template.Template
}

// Catalog holds the compiled prompt templates and their output validators.
type Catalog struct {
	prompts map[PromptName]compiled
}

var schemaFuncs = map[string]func() map[string]any{
	"course_outline":  CourseOutlineSchema,
	"roadmap_outline": RoadmapOutlineSchema,
	"quiz":            QuizSchema,
}

var funcs = template.FuncMap{
	"capitalize": func(s string) string {
		s = strings.TrimSpace(s)
		r, n := utf8.DecodeRuneInString(s)
		if n == 0 {
			return s
		}
		return string(unicode.ToUpper(r)) + s[n:]
	},
}

// Load compiles the embedded catalogue.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// MustLoad is Load for process startup.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prompt catalogue: %w", err)
	}
	c := &Catalog{prompts: make(map[PromptName]compiled, len(f.Prompts))}
	for rawName, s := range f.Prompts {
		name := PromptName(strings.TrimSpace(rawName))
		if name == "" {
			return nil, fmt.Errorf("missing prompt name")
		}
		if s.Version <= 0 {
			return nil, fmt.Errorf("invalid version for %s", name)
		}
		cp := compiled{name: name, version: s.Version, schemaName: strings.TrimSpace(s.SchemaName)}
		if cp.schemaName != "" {
			fn, ok := schemaFuncs[cp.schemaName]
			if !ok {
				return nil, fmt.Errorf("%s: unknown schema %q", name, cp.schemaName)
			}
			v, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(fn()))
			if err != nil {
				return nil, fmt.Errorf("%s schema compile: %w", name, err)
			}
			cp.schema = fn
			cp.validator = v
		}
		var err error
		if cp.system, err = template.New("system").Funcs(funcs).Option("missingkey=zero").Parse(s.System); err != nil {
			return nil, fmt.Errorf("%s system template parse: %w", name, err)
		}
		if cp.user, err = template.New("user").Funcs(funcs).Option("missingkey=zero").Parse(s.User); err != nil {
			return nil, fmt.Errorf("%s user template parse: %w", name, err)
		}
		c.prompts[name] = cp
	}
	return c, nil
}

// Build renders name with in.
func (c *Catalog) Build(name PromptName, in Input) (Prompt, error) {
	cp, ok := c.prompts[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", name)
	}
	system, err := render(cp.system, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
	user, err := render(cp.user, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
	p := Prompt{
		Name:       name,
		Version:    cp.version,
		System:     system,
		User:       user,
		SchemaName: cp.schemaName,
	}
	if cp.schema != nil {
		p.Schema = cp.schema()
	}
	return p, nil
}

func render(t *template.Template, in Input) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// ValidationError lists every schema violation in generator output.
type ValidationError struct {
	Prompt PromptName
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s output failed validation: %s", e.Prompt, strings.Join(e.Issues, "; "))
}

// Validate checks generator output against the prompt's schema.
func (c *Catalog) Validate(name PromptName, obj any) error {
	cp, ok := c.prompts[name]
	if !ok {
		return fmt.Errorf("unknown prompt: %s", name)
	}
	if cp.validator == nil {
		return nil
	}
	res, err := cp.validator.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return fmt.Errorf("%s validate: %w", name, err)
	}
	if res.Valid() {
		return nil
	}
	ve := &ValidationError{Prompt: name}
	for _, re := range res.Errors() {
		ve.Issues = append(ve.Issues, re.String())
	}
	return ve
}
