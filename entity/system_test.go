package entity

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/message"
)

const levelObj = `o level
v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 1
f 1//1 2//1 3//1
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// probe collects entity lifecycle messages per topic.
type probe struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (p *probe) handle(msg message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *probe) count(topic message.Topic) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, msg := range p.msgs {
		if msg.Topic() == topic {
			n++
		}
	}
	return n
}

func (p *probe) last(topic message.Topic) message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].Topic() == topic {
			return p.msgs[i]
		}
	}
	return nil
}

type harness struct {
	bus    *bus.Bus
	sys    *System
	probe  *probe
	assets string
}

func newHarness(t *testing.T, opts ...SystemOption) *harness {
	t.Helper()

	b := bus.New(testLogger())
	reg := NewRegistry()
	require.NoError(t, RegisterDefaults(reg))

	sys := NewSystem(testLogger(), b, reg, opts...)
	require.NoError(t, sys.Initialize())

	p := &probe{}
	_, err := b.Register("probe", []message.Topic{
		message.TopicEntityLoaded,
		message.TopicEntityReloaded,
		message.TopicEntityReplaced,
		message.TopicLoadFailed,
	}, p.handle)
	require.NoError(t, err)
	b.Seal()

	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(func() {
		_ = sys.Stop(2 * time.Second)
		_ = b.Shutdown(2 * time.Second)
	})

	return &harness{bus: b, sys: sys, probe: p, assets: t.TempDir()}
}

func (h *harness) write(t *testing.T, name, content string) Source {
	t.Helper()
	p := filepath.Join(h.assets, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return FileSource(p)
}

func TestSystemLoadPublishesEntityLoaded(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "level.obj", levelObj)

	require.NoError(t, h.sys.Load(src))

	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := h.probe.last(message.TopicEntityLoaded).Payload().(*message.EntityLoaded)
	assert.Equal(t, "level", payload.Name)
	assert.Equal(t, "mesh", payload.Variant)
	assert.Equal(t, uint64(0), payload.Generation)

	e, ok := h.sys.Get("level")
	require.True(t, ok)
	assert.Equal(t, uint64(0), e.Generation)
}

func TestSystemRepeatedLoadIsIdempotent(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "level.obj", levelObj)

	require.NoError(t, h.sys.Load(src))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sys.Load(src))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, h.probe.count(message.TopicEntityLoaded))
	assert.Equal(t, 0, h.probe.count(message.TopicEntityReloaded))
}

func TestSystemChangedContentPublishesReload(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "level.obj", levelObj)

	require.NoError(t, h.sys.Load(src))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.write(t, "level.obj", levelObj+"\n# touched\nf 1//1 3//1 2//1\n")
	require.NoError(t, h.sys.Load(src))

	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityReloaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := h.probe.last(message.TopicEntityReloaded).Payload().(*message.EntityReloaded)
	assert.Equal(t, "level", payload.Name)
	assert.Equal(t, uint64(1), payload.Generation)
}

func TestSystemNameCollisionReplaces(t *testing.T) {
	h := newHarness(t)

	objSrc := h.write(t, "level.obj", levelObj)
	require.NoError(t, h.sys.Load(objSrc))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A texture descriptor resolving to the same canonical name takes over.
	h.write(t, "level.png", "png-bytes")
	jsonSrc := h.write(t, "level.json", `{"type":"texture","image":"level.png"}`)
	require.NoError(t, h.sys.Load(jsonSrc))

	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityReplaced) == 1 &&
			h.probe.count(message.TopicEntityLoaded) == 2
	}, 2*time.Second, 10*time.Millisecond)

	replaced := h.probe.last(message.TopicEntityReplaced).Payload().(*message.EntityReplaced)
	assert.Equal(t, "level", replaced.Name)
	assert.Equal(t, uint64(0), replaced.OldGeneration)
	assert.Equal(t, uint64(1), replaced.NewGeneration)

	e, ok := h.sys.Get("level")
	require.True(t, ok)
	assert.Equal(t, VariantTexture, e.Variant)
	assert.Equal(t, uint64(1), e.Generation)
}

func TestSystemParameterBundleProducesOneEntityPerKey(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "global.param.json", `{"speed":1.5,"wireframe":false}`)

	require.NoError(t, h.sys.Load(src))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 2
	}, 2*time.Second, 10*time.Millisecond)

	speed, ok := h.sys.GetVariant("speed", VariantParameter)
	require.True(t, ok)
	assert.Equal(t, 1.5, speed.Payload.(*Parameter).Value.Float)

	_, ok = h.sys.Get("wireframe")
	assert.True(t, ok)
}

func TestSystemLoadFailurePublishesAndKeepsRunning(t *testing.T) {
	h := newHarness(t)
	bad := h.write(t, "broken.obj", "f 1//1 2//1 3//1\n")

	require.NoError(t, h.sys.Load(bad))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicLoadFailed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The system still accepts and completes loads afterwards.
	good := h.write(t, "level.obj", levelObj)
	require.NoError(t, h.sys.Load(good))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSystemLoadDirSkipsUnknownExtensions(t *testing.T) {
	h := newHarness(t)
	h.write(t, "meshes/level.obj", levelObj)
	h.write(t, "fx/global.param.json", `{"speed":1.0}`)
	h.write(t, "notes/readme.txt", "not an asset")

	require.NoError(t, h.sys.LoadDir(h.assets))

	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.probe.count(message.TopicLoadFailed))
}

func TestSystemWatcherReloadsChangedFile(t *testing.T) {
	h := newHarness(t, WithWatchInterval(10*time.Millisecond))
	src := h.write(t, "level.obj", levelObj)

	require.NoError(t, h.sys.Load(src))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// No explicit Load: the watcher picks the rewrite up on its own.
	h.write(t, "level.obj", levelObj+"\nf 1//1 3//1 2//1\n")

	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityReloaded) >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSystemWatcherReloadsShaderOnStageEdit(t *testing.T) {
	h := newHarness(t, WithWatchInterval(10*time.Millisecond))

	h.write(t, "fx/vert.glsl", "void main() {}")
	h.write(t, "fx/frag.glsl", "void main() {}")
	src := h.write(t, "fx/tunnel.shd.json",
		`{"name":"tunnel","stages":{"vertex":"vert.glsl","fragment":"frag.glsl"}}`)

	require.NoError(t, h.sys.Load(src))
	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityLoaded) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Editing a stage file alone reloads the bundle that depends on it.
	h.write(t, "fx/frag.glsl", "void main() { discard; }")

	require.Eventually(t, func() bool {
		return h.probe.count(message.TopicEntityReloaded) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	msg := h.probe.last(message.TopicEntityReloaded)
	payload, ok := msg.Payload().(*message.EntityReloaded)
	require.True(t, ok)
	assert.Equal(t, "tunnel", payload.Name)
}

func TestSystemCancelOutsideMarksPendingSteps(t *testing.T) {
	h := newHarness(t)

	inRange := &loadTask{state: &sourceState{}, step: 3}
	outOfRange := &loadTask{state: &sourceState{}, step: 40}
	untagged := &loadTask{state: &sourceState{}, step: UntaggedStep}

	h.sys.mu.Lock()
	h.sys.sources["a"] = &sourceState{inflight: inRange}
	h.sys.sources["b"] = &sourceState{inflight: outOfRange}
	h.sys.sources["c"] = &sourceState{inflight: untagged}
	h.sys.mu.Unlock()

	cancelled := h.sys.CancelOutside(0, 10)
	assert.Equal(t, 1, cancelled)
	assert.False(t, inRange.cancelled.Load())
	assert.True(t, outOfRange.cancelled.Load())
	assert.False(t, untagged.cancelled.Load())

	// Cancelling again is a no-op.
	assert.Equal(t, 0, h.sys.CancelOutside(0, 10))

	h.sys.mu.Lock()
	delete(h.sys.sources, "a")
	delete(h.sys.sources, "b")
	delete(h.sys.sources, "c")
	h.sys.mu.Unlock()
}

func TestSystemCancelledTaskSkipsLoad(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "level.obj", levelObj)

	st := &sourceState{src: src}
	task := &loadTask{state: st, step: 20}
	task.cancelled.Store(true)

	require.NoError(t, h.sys.process(context.Background(), task))
	time.Sleep(50 * time.Millisecond)

	_, ok := h.sys.Get("level")
	assert.False(t, ok)
	assert.Equal(t, 0, h.probe.count(message.TopicEntityLoaded))
}

func TestSystemLoadForStepRejectsNegative(t *testing.T) {
	h := newHarness(t)
	err := h.sys.LoadForStep(FileSource("x.obj"), -2)
	require.Error(t, err)
}
