package entity

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadronized/demo-05/errors"
)

func shaderFS() fstest.MapFS {
	return fstest.MapFS{
		"fx/tunnel.shd.json": {Data: []byte(`{
			"name": "tunnel",
			"stages": {
				"vertex": "tunnel.vert",
				"fragment": "tunnel.frag"
			}
		}`)},
		"fx/tunnel.vert": {Data: []byte("void main() {}")},
		"fx/tunnel.frag": {Data: []byte("out vec4 frag;")},
	}
}

func TestParseShaderBundle(t *testing.T) {
	fsys := shaderFS()
	src := EmbeddedSource(fsys, "fx/tunnel.shd.json")
	content, err := src.Read()
	require.NoError(t, err)

	pc := &ParseContext{Source: src, Content: content}
	decoded, err := ParseShader(pc)
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	shader, ok := decoded[0].(*Shader)
	require.True(t, ok)
	assert.Equal(t, "tunnel", shader.Name)
	assert.Equal(t, "tunnel", shader.EntityName())
	assert.Equal(t, "void main() {}", shader.Stages[StageVertex])
	assert.Equal(t, "out vec4 frag;", shader.Stages[StageFragment])

	// Stage files become reload dependencies of the program.
	assert.ElementsMatch(t, []string{"tunnel.vert", "tunnel.frag"}, pc.Deps())
}

func TestParseShaderRejections(t *testing.T) {
	fsys := shaderFS()
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", `{"stages":{"vertex":"tunnel.vert","fragment":"tunnel.frag"}}`},
		{"no stages", `{"name":"tunnel","stages":{}}`},
		{"unknown stage kind", `{"name":"tunnel","stages":{"compute":"a.comp"}}`},
		{"missing vertex stage", `{"name":"tunnel","stages":{"fragment":"tunnel.frag"}}`},
		{"missing fragment stage", `{"name":"tunnel","stages":{"vertex":"tunnel.vert"}}`},
		{"unreadable stage file", `{"name":"tunnel","stages":{"vertex":"gone.vert","fragment":"tunnel.frag"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pc := &ParseContext{
				Source:  EmbeddedSource(fsys, "fx/tunnel.shd.json"),
				Content: []byte(tc.content),
			}
			_, err := ParseShader(pc)
			require.Error(t, err)
		})
	}
}

func TestParseParameters(t *testing.T) {
	pc := &ParseContext{
		Source:  FileSource("fx/global.param.json"),
		Content: []byte(`{"speed":1.5,"tint":[1,0,0.5],"wireframe":true,"title":"demo"}`),
	}
	decoded, err := ParseParameters(pc)
	require.NoError(t, err)
	require.Len(t, decoded, 4)

	// Key order is deterministic.
	names := make([]string, len(decoded))
	for i, d := range decoded {
		p, ok := d.(*Parameter)
		require.True(t, ok)
		names[i] = p.EntityName()
	}
	assert.Equal(t, []string{"speed", "tint", "title", "wireframe"}, names)

	speed := decoded[0].(*Parameter)
	assert.Equal(t, ParamFloat, speed.Value.Kind)
	assert.Equal(t, 1.5, speed.Value.Float)

	tint := decoded[1].(*Parameter)
	assert.Equal(t, ParamVec, tint.Value.Kind)
	assert.Equal(t, []float64{1, 0, 0.5}, tint.Value.Vec)

	title := decoded[2].(*Parameter)
	assert.Equal(t, ParamText, title.Value.Kind)
	assert.Equal(t, "demo", title.Value.Text)

	wireframe := decoded[3].(*Parameter)
	assert.Equal(t, ParamBool, wireframe.Value.Kind)
	assert.True(t, wireframe.Value.Bool)
}

func TestParseParametersRejections(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"not an object", `[1,2,3]`},
		{"empty bundle", `{}`},
		{"vector too long", `{"m":[1,2,3,4,5]}`},
		{"nested object value", `{"bad":{"x":1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseParameters(&ParseContext{Content: []byte(tc.content)})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrParseFailed)
		})
	}
}

func TestParseTexture(t *testing.T) {
	fsys := fstest.MapFS{
		"tex/noise.json": {Data: []byte(`{"type":"texture","image":"noise.png","sampling":{"filter":"nearest"}}`)},
		"tex/noise.png":  {Data: []byte{0x89, 0x50, 0x4e, 0x47}},
	}
	src := EmbeddedSource(fsys, "tex/noise.json")
	content, err := src.Read()
	require.NoError(t, err)

	pc := &ParseContext{Source: src, Content: content}
	decoded, err := ParseTexture(pc)
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	tex := decoded[0].(*Texture)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, tex.Image)
	assert.Equal(t, "nearest", tex.Sampling.Filter)
	assert.Equal(t, "repeat", tex.Sampling.Wrap)
	assert.Equal(t, []string{"noise.png"}, pc.Deps())

	// No self-declared name, so the canonical name comes from the stem.
	name, err := DeriveName(src, tex)
	require.NoError(t, err)
	assert.Equal(t, "noise", name)
}

func TestParseTextureMissingImage(t *testing.T) {
	_, err := ParseTexture(&ParseContext{
		Source:  FileSource("tex/bad.json"),
		Content: []byte(`{"type":"texture"}`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParseFailed)
}
