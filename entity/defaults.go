package entity

import (
	"encoding/json"
)

// ProbeJSONType returns a probe matching JSON documents whose top-level
// "type" field equals want. Malformed documents never match; dispatch then
// falls through to later rules or fails.
func ProbeJSONType(want string) ProbeFunc {
	return func(content []byte) bool {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(content, &head); err != nil {
			return false
		}
		return head.Type == want
	}
}

// probeParamBundle matches flat JSON objects with no "type" marker, the
// shape of a parameter bundle.
func probeParamBundle(content []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(content, &head); err != nil {
		return false
	}
	return head.Type == ""
}

// RegisterDefaults declares the built-in variants and dispatch rules:
//
//	.obj            -> mesh
//	.shd.json       -> shader bundle
//	.param.json     -> parameter bundle
//	.json + probe   -> mesh, texture, shader or parameters by "type" marker
//
// Sub-extension rules precede bare .json rules so foo.shd.json never reaches
// the probes.
func RegisterDefaults(r *Registry) error {
	for _, v := range []Variant{VariantMesh, VariantShader, VariantTexture, VariantParameter} {
		if err := r.RegisterVariant(v); err != nil {
			return err
		}
	}

	rules := []struct {
		sig   Signature
		v     Variant
		parse ParseFunc
	}{
		{Signature{Ext: "obj"}, VariantMesh, ParseMesh},
		{Signature{Ext: "json", SubExt: "shd"}, VariantShader, ParseShader},
		{Signature{Ext: "json", SubExt: "param"}, VariantParameter, ParseParameters},
		{Signature{Ext: "json", Probe: ProbeJSONType("mesh")}, VariantMesh, ParseMeshJSON},
		{Signature{Ext: "json", Probe: ProbeJSONType("texture")}, VariantTexture, ParseTexture},
		{Signature{Ext: "json", Probe: ProbeJSONType("shader")}, VariantShader, ParseShader},
		{Signature{Ext: "json", Probe: probeParamBundle}, VariantParameter, ParseParameters},
	}
	for _, rule := range rules {
		if err := r.RegisterRepresentation(rule.sig, rule.v, rule.parse); err != nil {
			return err
		}
	}
	return nil
}
