package graphics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/entity"
	"github.com/hadronized/demo-05/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	bus   *bus.Bus
	store *entity.Store
	sys   *System
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b := bus.New(testLogger())
	store := entity.NewStore()
	sys := NewSystem(testLogger(), b, store)
	require.NoError(t, sys.Initialize())

	_, err := b.Register("entity", nil, nil)
	require.NoError(t, err)
	b.Seal()
	require.NoError(t, sys.Start(context.Background()))

	t.Cleanup(func() {
		_ = sys.Stop(time.Second)
		_ = b.Shutdown(time.Second)
	})
	return &fixture{bus: b, store: store, sys: sys}
}

func (f *fixture) install(t *testing.T, name string, hash string) {
	t.Helper()
	result := f.store.Install(name, entity.FileSource(name+".obj"), entity.VariantMesh, &entity.Mesh{}, hash)
	switch result.Outcome {
	case entity.OutcomeLoaded:
		require.NoError(t, f.bus.Publish("entity", &message.EntityLoaded{
			Name: name, Variant: "mesh", Generation: result.Generation,
		}))
	case entity.OutcomeReloaded:
		require.NoError(t, f.bus.Publish("entity", &message.EntityReloaded{
			Name: name, Generation: result.Generation,
		}))
	}
}

func TestTickRefreshesDirtyEntities(t *testing.T) {
	f := newFixture(t)
	f.install(t, "level", "hash-a")
	f.install(t, "tunnel", "hash-b")

	require.Eventually(t, func() bool {
		_, a := f.sys.Generation("level")
		_, b := f.sys.Generation("tunnel")
		return a && b
	}, 2*time.Second, 5*time.Millisecond)

	refreshed := f.sys.Tick()
	assert.ElementsMatch(t, []string{"level", "tunnel"}, refreshed)

	// Nothing changed since; the next frame rebuilds nothing.
	assert.Empty(t, f.sys.Tick())
	assert.Equal(t, int64(2), f.sys.Frame())
}

func TestGenerationBumpInvalidatesOnce(t *testing.T) {
	f := newFixture(t)
	f.install(t, "level", "hash-a")

	require.Eventually(t, func() bool {
		g, ok := f.sys.Generation("level")
		return ok && g == 0
	}, 2*time.Second, 5*time.Millisecond)
	f.sys.Tick()

	f.install(t, "level", "hash-b")
	require.Eventually(t, func() bool {
		g, _ := f.sys.Generation("level")
		return g == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"level"}, f.sys.Tick())
}

func TestStaleGenerationIgnored(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bus.Publish("entity", &message.EntityLoaded{Name: "level", Variant: "mesh", Generation: 5}))
	require.Eventually(t, func() bool {
		g, ok := f.sys.Generation("level")
		return ok && g == 5
	}, 2*time.Second, 5*time.Millisecond)

	// An out-of-date reloaded delivery must not roll the cache back.
	require.NoError(t, f.bus.Publish("entity", &message.EntityReloaded{Name: "level", Generation: 3}))
	time.Sleep(50 * time.Millisecond)

	g, _ := f.sys.Generation("level")
	assert.Equal(t, uint64(5), g)
}

func TestDirtyWithoutInstalledSnapshotSkipsRebuild(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bus.Publish("entity", &message.EntityLoaded{Name: "ghost", Variant: "mesh", Generation: 0}))
	require.Eventually(t, func() bool {
		_, ok := f.sys.Generation("ghost")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Dirty but absent from the store: the frame path must not fail.
	assert.Empty(t, f.sys.Tick())
}

func TestStepAdvancedTracked(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(-1), f.sys.LastStep())

	require.NoError(t, f.bus.Publish("entity", &message.StepAdvanced{Tick: 9, AudioTime: time.Second}))
	require.Eventually(t, func() bool {
		return f.sys.LastStep() == 9
	}, 2*time.Second, 5*time.Millisecond)
}
