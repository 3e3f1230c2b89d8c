package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFirstInstallStartsAtGenerationZero(t *testing.T) {
	s := NewStore()
	src := FileSource("meshes/level.obj")

	result := s.Install("level", src, VariantMesh, &Mesh{}, "hash-a")
	assert.Equal(t, OutcomeLoaded, result.Outcome)
	assert.Equal(t, uint64(0), result.Generation)

	e, ok := s.Get("level")
	require.True(t, ok)
	assert.Equal(t, uint64(0), e.Generation)
	assert.Equal(t, VariantMesh, e.Variant)
}

func TestStoreIdenticalContentIsNoOp(t *testing.T) {
	s := NewStore()
	src := FileSource("meshes/level.obj")

	s.Install("level", src, VariantMesh, &Mesh{}, "hash-a")
	result := s.Install("level", src, VariantMesh, &Mesh{}, "hash-a")

	assert.Equal(t, OutcomeUnchanged, result.Outcome)
	assert.Equal(t, uint64(0), result.Generation)
}

func TestStoreReloadBumpsGeneration(t *testing.T) {
	s := NewStore()
	src := FileSource("meshes/level.obj")

	s.Install("level", src, VariantMesh, &Mesh{}, "hash-a")
	result := s.Install("level", src, VariantMesh, &Mesh{}, "hash-b")

	assert.Equal(t, OutcomeReloaded, result.Outcome)
	assert.Equal(t, uint64(1), result.Generation)
	assert.Equal(t, uint64(0), result.OldGeneration)

	result = s.Install("level", src, VariantMesh, &Mesh{}, "hash-c")
	assert.Equal(t, uint64(2), result.Generation)
}

func TestStoreCollisionReplacesLastWriterWins(t *testing.T) {
	s := NewStore()
	objSrc := FileSource("meshes/level.obj")
	jsonSrc := FileSource("meshes/level.json")

	s.Install("level", objSrc, VariantMesh, &Mesh{}, "hash-obj")
	result := s.Install("level", jsonSrc, VariantMesh, &Mesh{}, "hash-json")

	assert.Equal(t, OutcomeReplaced, result.Outcome)
	assert.Equal(t, uint64(1), result.Generation)
	assert.Equal(t, uint64(0), result.OldGeneration)

	e, ok := s.Get("level")
	require.True(t, ok)
	assert.Equal(t, jsonSrc.Key(), e.Source.Key())
}

func TestStoreSameContentDifferentSourceStillReplaces(t *testing.T) {
	s := NewStore()

	s.Install("level", FileSource("a/level.obj"), VariantMesh, &Mesh{}, "hash-a")
	result := s.Install("level", FileSource("b/level.obj"), VariantMesh, &Mesh{}, "hash-a")

	// The binding moved to another source even though content matches.
	assert.Equal(t, OutcomeReplaced, result.Outcome)
	assert.Equal(t, uint64(1), result.Generation)
}

func TestStoreGetVariantFiltersKind(t *testing.T) {
	s := NewStore()
	s.Install("level", FileSource("meshes/level.obj"), VariantMesh, &Mesh{}, "h")

	_, ok := s.GetVariant("level", VariantShader)
	assert.False(t, ok)

	e, ok := s.GetVariant("level", VariantMesh)
	require.True(t, ok)
	assert.Equal(t, "level", e.Name)
}

func TestStoreUnboundName(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("ghost")
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}
