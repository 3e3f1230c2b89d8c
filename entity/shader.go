package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hadronized/demo-05/errors"
)

// Shader is a decoded shader program: the bundle name plus the source text of
// each stage, keyed by stage kind.
type Shader struct {
	Name   string
	Stages map[ShaderStage]string
}

// ShaderStage identifies one program stage.
type ShaderStage string

// Stage kinds accepted in shader bundles.
const (
	StageVertex      ShaderStage = "vertex"
	StageTessControl ShaderStage = "tess-control"
	StageTessEval    ShaderStage = "tess-eval"
	StageGeometry    ShaderStage = "geometry"
	StageFragment    ShaderStage = "fragment"
)

// DecodedVariant implements Decoded.
func (s *Shader) DecodedVariant() Variant { return VariantShader }

// EntityName implements SelfNaming: the bundle declares its own program name.
func (s *Shader) EntityName() string { return s.Name }

// shaderBundle is the .shd.json wire form. Stage values are paths relative
// to the bundle file.
type shaderBundle struct {
	Name   string            `json:"name"`
	Stages map[string]string `json:"stages"`
}

var validStages = map[ShaderStage]bool{
	StageVertex:      true,
	StageTessControl: true,
	StageTessEval:    true,
	StageGeometry:    true,
	StageFragment:    true,
}

// ParseShader decodes a shader bundle. Each stage entry names a sibling file
// holding the stage source; those files are read through the parse context
// so they become reload dependencies of the program.
func ParseShader(pc *ParseContext) ([]Decoded, error) {
	wrap := func(err error, action string) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParseFailed, err), "Shader", "Parse", action)
	}

	var bundle shaderBundle
	if err := json.Unmarshal(pc.Content, &bundle); err != nil {
		return nil, wrap(err, "bundle decode")
	}
	if strings.TrimSpace(bundle.Name) == "" {
		return nil, wrap(fmt.Errorf("bundle missing name"), "name check")
	}
	if len(bundle.Stages) == 0 {
		return nil, wrap(fmt.Errorf("bundle %q declares no stages", bundle.Name), "stage presence check")
	}

	shader := &Shader{
		Name:   bundle.Name,
		Stages: make(map[ShaderStage]string, len(bundle.Stages)),
	}
	// Sorted stage order keeps sibling reads, and with them the content
	// hash, deterministic across reloads.
	kinds := make([]string, 0, len(bundle.Stages))
	for kind := range bundle.Stages {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		rel := bundle.Stages[kind]
		stage := ShaderStage(kind)
		if !validStages[stage] {
			return nil, wrap(fmt.Errorf("bundle %q: unknown stage kind %q", bundle.Name, kind), "stage kind check")
		}
		src, err := pc.ReadSibling(rel)
		if err != nil {
			return nil, errors.Wrap(
				fmt.Errorf("bundle %q: stage %s: %w", bundle.Name, stage, err),
				"Shader", "Parse", "stage read")
		}
		shader.Stages[stage] = string(src)
	}

	if _, ok := shader.Stages[StageVertex]; !ok {
		return nil, wrap(fmt.Errorf("bundle %q has no vertex stage", bundle.Name), "vertex stage check")
	}
	if _, ok := shader.Stages[StageFragment]; !ok {
		return nil, wrap(fmt.Errorf("bundle %q has no fragment stage", bundle.Name), "fragment stage check")
	}

	return []Decoded{shader}, nil
}
