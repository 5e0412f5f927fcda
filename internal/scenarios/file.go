package scenarios

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"collapse/internal/collapse"
	"collapse/internal/logging"
	"collapse/internal/mangle"
)

// File is the YAML form of a scenario.
type File struct {
	Version     int                  `yaml:"version"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Expected    string               `yaml:"expected,omitempty"`
	Context     ContextSpec          `yaml:"context"`
	Preferences collapse.Preferences `yaml:"preferences,omitempty"`
	AdvancePlan []AdvanceSpec        `yaml:"advance_plan,omitempty"`
	Kernels     []KernelSpec         `yaml:"kernels"`
	Steps       [][]string           `yaml:"steps"`
}

// ContextSpec is the initial context.
type ContextSpec struct {
	Entities  map[string]collapse.Entity   `yaml:"entities,omitempty"`
	Plans     []collapse.Plan              `yaml:"plans,omitempty"`
	Discourse collapse.Discourse           `yaml:"discourse"`
	Focus     string                       `yaml:"focus,omitempty"`
	Facts     map[string]map[string]string `yaml:"facts,omitempty"`
	Cursor    *collapse.Cursor             `yaml:"cursor,omitempty"`
}

// AdvanceSpec moves the plan cursor after a step index is eliminated.
type AdvanceSpec struct {
	AfterStep int `yaml:"after_step"`
	PlanStep  int `yaml:"plan_step"`
}

// KernelSpec declares one kernel. Type selects which fields apply:
//
//	category: expect + sets, or per_step
//	require:  require, any_tag
//	forbid:   when, tokens, tag, ok_tag, na_tag
//	fact:     relation, at, tag, any_tag
//	mangle:   program, tag
type KernelSpec struct {
	Type string `yaml:"type"`
	Name string `yaml:"name,omitempty"`

	Expect  map[int]string      `yaml:"expect,omitempty"`
	Sets    map[string][]string `yaml:"sets,omitempty"`
	PerStep [][]string          `yaml:"per_step,omitempty"`

	Require map[int]Requirement `yaml:"require,omitempty"`
	AnyTag  string              `yaml:"any_tag,omitempty"`

	When   collapse.Tense `yaml:"when,omitempty"`
	Tokens []string       `yaml:"tokens,omitempty"`
	Tag    string         `yaml:"tag,omitempty"`
	OKTag  string         `yaml:"ok_tag,omitempty"`
	NATag  string         `yaml:"na_tag,omitempty"`

	Relation string `yaml:"relation,omitempty"`
	At       []int  `yaml:"at,omitempty"`

	Program string `yaml:"program,omitempty"`
}

// LoadFile reads a YAML scenario from disk. cfg bounds the Mangle stores
// backing fact tables and rule kernels.
func LoadFile(path string, cfg mangle.Config) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	logging.ScenarioDebug("loaded %s from %s: %d steps, %d kernels", sc.Name, path, len(sc.Steps), len(sc.Kernels))
	return sc, nil
}

// Parse builds a scenario from YAML bytes.
func Parse(data []byte, cfg mangle.Config) (*Scenario, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	return f.Build(cfg)
}

// Build turns the file into a runnable scenario with a fresh context.
func (f *File) Build(cfg mangle.Config) (*Scenario, error) {
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", f.Name)
	}
	if len(f.Kernels) == 0 {
		return nil, fmt.Errorf("scenario %q has no kernels", f.Name)
	}

	ctx := collapse.NewContext()
	for name, e := range f.Context.Entities {
		ctx.Entities[name] = e
	}
	ctx.Plans = append(ctx.Plans, f.Context.Plans...)
	ctx.Discourse = f.Context.Discourse
	ctx.Focus = f.Context.Focus
	if f.Context.Cursor != nil {
		ctx.Cursor = *f.Context.Cursor
	}
	if len(f.Context.Facts) > 0 {
		table, err := mangle.NewFactTable(cfg, f.Context.Facts)
		if err != nil {
			return nil, err
		}
		ctx.Facts = table
	}

	kernels := make(collapse.KernelSet, 0, len(f.Kernels))
	for i, spec := range f.Kernels {
		k, err := spec.build(cfg, f.Context)
		if err != nil {
			return nil, fmt.Errorf("kernel %d (%s): %w", i, spec.Type, err)
		}
		kernels = append(kernels, k)
	}

	var hooks []collapse.Bookkeeping
	for _, a := range f.AdvancePlan {
		hooks = append(hooks, collapse.AdvancePlanAfter(a.AfterStep, a.PlanStep))
	}

	return &Scenario{
		Name:        f.Name,
		Description: f.Description,
		Expected:    f.Expected,
		Context:     ctx,
		Kernels:     kernels,
		Steps:       f.Steps,
		Preferences: f.Preferences,
		Bookkeeping: hooks,
	}, nil
}

func (k KernelSpec) build(cfg mangle.Config, ctx ContextSpec) (collapse.Kernel, error) {
	name := k.Name
	if name == "" {
		name = k.Type
	}

	switch strings.ToLower(strings.TrimSpace(k.Type)) {
	case "category":
		if len(k.PerStep) > 0 {
			return StepKernel(name, k.PerStep), nil
		}
		if len(k.Expect) == 0 {
			return collapse.Kernel{}, fmt.Errorf("category kernel needs expect+sets or per_step")
		}
		for step, cat := range k.Expect {
			if _, ok := k.Sets[cat]; !ok {
				return collapse.Kernel{}, fmt.Errorf("step %d expects undefined category %q", step, cat)
			}
		}
		return CategoryKernel(name, k.Expect, k.Sets), nil

	case "require":
		if len(k.Require) == 0 {
			return collapse.Kernel{}, fmt.Errorf("require kernel has no requirements")
		}
		return RequireKernel(name, k.Require, orDefault(k.AnyTag, "role:any")), nil

	case "forbid":
		if k.When == "" || k.Tag == "" {
			return collapse.Kernel{}, fmt.Errorf("forbid kernel needs when and tag")
		}
		return ForbidKernel(name, TenseRule{
			When:   k.When,
			Tokens: k.Tokens,
			Tag:    k.Tag,
			OKTag:  orDefault(k.OKTag, collapse.ReasonCategory(k.Tag)+":ok"),
			NATag:  k.NATag,
		}), nil

	case "fact":
		if k.Relation == "" || k.Tag == "" {
			return collapse.Kernel{}, fmt.Errorf("fact kernel needs relation and tag")
		}
		return FactKernel(name, k.Relation, k.At, k.Tag, orDefault(k.AnyTag, collapse.ReasonCategory(k.Tag)+":any")), nil

	case "mangle":
		if k.Program == "" || k.Tag == "" {
			return collapse.Kernel{}, fmt.Errorf("mangle kernel needs program and tag")
		}
		return mangle.NewRuleKernel(cfg, mangle.RuleProgram{
			Name:      name,
			Tag:       k.Tag,
			Source:    k.Program,
			Relations: ctx.Facts,
			Focus:     ctx.Focus,
		})

	default:
		return collapse.Kernel{}, fmt.Errorf("unsupported kernel type: %s", k.Type)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
