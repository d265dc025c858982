package pipeline

import (
	"maps"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of a pipeline.
type Definition struct {
	Stages []StageDefinition `yaml:"stages"`
}

// StageDefinition describes one stage. In override files Remove drops the
// stage with the same id.
type StageDefinition struct {
	ID     string         `yaml:"id"`
	Kind   string         `yaml:"stage"`
	Args   map[string]any `yaml:"args"`
	Remove bool           `yaml:"remove"`
}

// Builder assembles pipelines from YAML definitions.
type Builder struct {
	registry *Registry
}

func NewBuilder(registry *Registry) *Builder {
	return &Builder{registry: registry}
}

// BuildFromFiles loads the definition at path and applies every override
// file in order. An override stage with a known id replaces its kind when
// set and its args key by key, or removes it when flagged. Stages with a
// new id are appended.
func (b *Builder) BuildFromFiles(path string, overridePaths []string) (Pipeline, error) {
	def, err := LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	for _, p := range overridePaths {
		override, err := LoadDefinition(p)
		if err != nil {
			return nil, err
		}
		def = def.Merge(override)
	}
	return b.Build(def)
}

// Build creates a pipeline from an in-memory definition.
func (b *Builder) Build(def Definition) (Pipeline, error) {
	seen := map[string]struct{}{}
	stages := make([]Stage, 0, len(def.Stages))
	for _, sd := range def.Stages {
		if sd.Remove {
			continue
		}
		if _, ok := seen[sd.ID]; ok {
			return nil, errors.Errorf("pipeline stage %s is defined twice", sd.ID)
		}
		seen[sd.ID] = struct{}{}
		stage, err := b.registry.Build(sd)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return NewChain(stages...), nil
}

func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errors.Wrapf(err, "failed to read pipeline file %s", path)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, errors.Wrapf(err, "failed to parse pipeline file %s", path)
	}
	return def, nil
}

// Merge returns d with the stages of override applied.
func (d Definition) Merge(override Definition) Definition {
	out := Definition{Stages: make([]StageDefinition, 0, len(d.Stages)+len(override.Stages))}
	for _, s := range d.Stages {
		s.Args = maps.Clone(s.Args)
		out.Stages = append(out.Stages, s)
	}

	for _, o := range override.Stages {
		i := out.index(o.ID)
		switch {
		case i < 0 && o.Remove:
		case i < 0:
			out.Stages = append(out.Stages, o)
		case o.Remove:
			out.Stages = append(out.Stages[:i], out.Stages[i+1:]...)
		default:
			if o.Kind != "" {
				out.Stages[i].Kind = o.Kind
			}
			if out.Stages[i].Args == nil {
				out.Stages[i].Args = map[string]any{}
			}
			maps.Copy(out.Stages[i].Args, o.Args)
		}
	}
	return out
}

func (d Definition) index(id string) int {
	for i, s := range d.Stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}
