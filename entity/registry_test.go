package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadronized/demo-05/errors"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterDefaults(r))
	require.NoError(t, r.Validate())
	return r
}

func TestValidateRejectsUnreachableVariant(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterVariant(VariantMesh))
	require.NoError(t, r.RegisterVariant(VariantShader))
	require.NoError(t, r.RegisterRepresentation(Signature{Ext: "obj"}, VariantMesh, ParseMesh))

	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoRepresentation)
	assert.True(t, errors.IsFatal(err))
}

func TestRegisterRepresentationRequiresDeclaredVariant(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterRepresentation(Signature{Ext: "obj"}, VariantMesh, ParseMesh)
	require.Error(t, err)
}

func TestDispatchByExtension(t *testing.T) {
	r := defaultRegistry(t)

	rep, err := r.Dispatch(FileSource("assets/level.obj"), []byte("v 0 0 0"))
	require.NoError(t, err)
	assert.Equal(t, VariantMesh, rep.Variant)
}

func TestDispatchSubExtensionBeatsProbe(t *testing.T) {
	r := defaultRegistry(t)

	// A shader bundle with no "type" marker would match the parameter
	// probe; the sub-extension rule must win first.
	rep, err := r.Dispatch(FileSource("fx/tunnel.shd.json"), []byte(`{"name":"tunnel","stages":{}}`))
	require.NoError(t, err)
	assert.Equal(t, VariantShader, rep.Variant)

	rep, err = r.Dispatch(FileSource("fx/tunnel.param.json"), []byte(`{"speed":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, VariantParameter, rep.Variant)
}

func TestDispatchProbeDisambiguatesSharedExtension(t *testing.T) {
	r := defaultRegistry(t)

	cases := []struct {
		name    string
		content string
		want    Variant
	}{
		{"mesh marker", `{"type":"mesh","vertices":[],"indices":[]}`, VariantMesh},
		{"texture marker", `{"type":"texture","image":"noise.png"}`, VariantTexture},
		{"shader marker", `{"type":"shader","name":"blur","stages":{}}`, VariantShader},
		{"no marker is parameters", `{"speed":2.0,"tint":[1,0,0]}`, VariantParameter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := r.Dispatch(FileSource("fx/thing.json"), []byte(tc.content))
			require.NoError(t, err)
			assert.Equal(t, tc.want, rep.Variant)
		})
	}
}

func TestDispatchFailures(t *testing.T) {
	r := defaultRegistry(t)

	cases := []struct {
		name    string
		locator string
		content string
	}{
		{"unknown extension", "notes/readme.txt", "hello"},
		{"known extension, no matching probe", "fx/broken.json", `{"type":"upside-down"}`},
		{"malformed json matches nothing", "fx/broken.json", `{"type":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Dispatch(FileSource(tc.locator), []byte(tc.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrDispatchFailed)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDispatchOrderFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterVariant(VariantMesh))
	require.NoError(t, r.RegisterVariant(VariantTexture))

	first := func(pc *ParseContext) ([]Decoded, error) { return []Decoded{&Mesh{}}, nil }
	second := func(pc *ParseContext) ([]Decoded, error) { return []Decoded{&Texture{}}, nil }
	require.NoError(t, r.RegisterRepresentation(Signature{Ext: "bin"}, VariantMesh, first))
	require.NoError(t, r.RegisterRepresentation(Signature{Ext: "bin"}, VariantTexture, second))

	rep, err := r.Dispatch(FileSource("a.bin"), nil)
	require.NoError(t, err)
	assert.Equal(t, VariantMesh, rep.Variant)
}

func TestSourceNaming(t *testing.T) {
	cases := []struct {
		locator string
		ext     string
		subExt  string
		stem    string
	}{
		{"meshes/level.obj", "obj", "", "level"},
		{"fx/tunnel.shd.json", "json", "shd", "tunnel"},
		{"fx/global.param.json", "json", "param", "global"},
		{"UPPER.OBJ", "obj", "", "UPPER"},
		{"noext", "", "", "noext"},
	}
	for _, tc := range cases {
		src := FileSource(tc.locator)
		assert.Equal(t, tc.ext, src.Ext(), tc.locator)
		assert.Equal(t, tc.subExt, src.SubExt(), tc.locator)
		assert.Equal(t, tc.stem, src.Stem(), tc.locator)
	}
}

func TestDeriveNamePrefersSelfNaming(t *testing.T) {
	src := FileSource("fx/whatever.shd.json")

	name, err := DeriveName(src, &Shader{Name: "tunnel"})
	require.NoError(t, err)
	assert.Equal(t, "tunnel", name)

	// A declared OBJ object name wins over the locator.
	name, err = DeriveName(src, &Mesh{Name: "cube"})
	require.NoError(t, err)
	assert.Equal(t, "cube", name)

	// Payloads without a name fall back to the source stem.
	name, err = DeriveName(src, &Mesh{})
	require.NoError(t, err)
	assert.Equal(t, "whatever", name)

	// An empty self-declared name also falls back.
	name, err = DeriveName(src, &Texture{})
	require.NoError(t, err)
	assert.Equal(t, "whatever", name)
}
