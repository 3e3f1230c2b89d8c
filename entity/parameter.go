package entity

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hadronized/demo-05/errors"
)

// Parameter is one decoded tuning constant from a parameter bundle. Each key
// in a .param.json file becomes its own entity so effects can depend on
// individual values.
type Parameter struct {
	Name  string
	Value ParamValue
}

// ParamValue holds one of the supported parameter shapes.
type ParamValue struct {
	Kind  ParamKind
	Float float64
	Vec   []float64
	Bool  bool
	Text  string
}

// ParamKind discriminates ParamValue.
type ParamKind int

// Supported parameter shapes.
const (
	ParamFloat ParamKind = iota
	ParamVec
	ParamBool
	ParamText
)

// DecodedVariant implements Decoded.
func (p *Parameter) DecodedVariant() Variant { return VariantParameter }

// EntityName implements SelfNaming: parameters are named by their bundle key,
// not by the bundle file.
func (p *Parameter) EntityName() string { return p.Name }

// ParseParameters decodes a parameter bundle into one entity per key.
// Entities are returned in key order so repeated loads of the same bundle
// publish deterministically.
func ParseParameters(pc *ParseContext) ([]Decoded, error) {
	wrap := func(err error, action string) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParseFailed, err), "Parameter", "Parse", action)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(pc.Content, &raw); err != nil {
		return nil, wrap(err, "bundle decode")
	}
	if len(raw) == 0 {
		return nil, wrap(fmt.Errorf("bundle declares no parameters"), "key presence check")
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if k == "" {
			return nil, wrap(fmt.Errorf("bundle contains empty key"), "key check")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Decoded, 0, len(keys))
	for _, k := range keys {
		val, err := parseParamValue(raw[k])
		if err != nil {
			return nil, wrap(fmt.Errorf("key %q: %v", k, err), "value decode")
		}
		out = append(out, &Parameter{Name: k, Value: val})
	}
	return out, nil
}

func parseParamValue(raw json.RawMessage) (ParamValue, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return ParamValue{Kind: ParamFloat, Float: f}, nil
	}

	var vec []float64
	if err := json.Unmarshal(raw, &vec); err == nil {
		if len(vec) < 2 || len(vec) > 4 {
			return ParamValue{}, fmt.Errorf("vector has %d components, want 2 to 4", len(vec))
		}
		return ParamValue{Kind: ParamVec, Vec: vec}, nil
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return ParamValue{Kind: ParamBool, Bool: b}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParamValue{Kind: ParamText, Text: s}, nil
	}

	return ParamValue{}, fmt.Errorf("unsupported value shape")
}
