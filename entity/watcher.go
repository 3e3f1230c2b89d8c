package entity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/pkg/retry"
)

// DefaultWatchInterval is the poll cadence when none is configured.
const DefaultWatchInterval = 500 * time.Millisecond

// watched is one tracked source plus the sibling files its entity depends
// on. The token covers all of them, so editing only a shader stage file
// still reloads the program.
type watched struct {
	src   Source
	deps  []string
	token string
}

// Watcher polls tracked sources for content changes. It lives for the whole
// process: seeks cancel pending loads, never watches. Transient read errors
// are retried with backoff; only exhausted retries surface as failures, and
// the source stays tracked afterwards.
type Watcher struct {
	logger   *slog.Logger
	onChange func(Source)
	onError  func(Source, error)
	interval time.Duration
	retry    retry.Config

	mu      sync.Mutex
	tracked map[string]*watched

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a stopped watcher reporting through the callbacks.
func NewWatcher(logger *slog.Logger, onChange func(Source), onError func(Source, error)) *Watcher {
	return &Watcher{
		logger:   logger,
		onChange: onChange,
		onError:  onError,
		interval: DefaultWatchInterval,
		retry:    retry.Quick(),
		tracked:  make(map[string]*watched),
	}
}

// Track starts watching src and its sibling dependencies. The caller passes
// the token of the exact bytes it decoded; an edit landing between that read
// and the first poll is then seen as a change rather than swallowed. Tracking
// the same source again refreshes the dependency list and the token.
func (w *Watcher) Track(src Source, deps []string, token string) {
	if !src.Watchable() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[src.Key()] = &watched{src: src, deps: deps, token: token}
}

// Untrack stops watching src.
func (w *Watcher) Untrack(src Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, src.Key())
}

// Tracked returns the number of watched sources.
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// Start launches the poll loop. Stop or ctx cancellation ends it.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

// Stop ends the poll loop and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	snapshot := make([]*watched, 0, len(w.tracked))
	for _, entry := range w.tracked {
		snapshot = append(snapshot, entry)
	}
	w.mu.Unlock()

	for _, entry := range snapshot {
		if ctx.Err() != nil {
			return
		}

		token, err := w.readToken(ctx, entry.src, entry.deps)
		if err != nil {
			w.onError(entry.src, err)
			continue
		}

		w.mu.Lock()
		current, still := w.tracked[entry.src.Key()]
		changed := still && current.token != token
		if changed {
			current.token = token
		}
		w.mu.Unlock()

		if changed {
			w.logger.Debug("source changed", "source", entry.src.Key())
			w.onChange(entry.src)
		}
	}
}

// readToken hashes the source content and every sibling dependency, with
// retry on transient I/O. Non-transient failures are not worth retrying and
// surface immediately.
func (w *Watcher) readToken(ctx context.Context, src Source, deps []string) (string, error) {
	return retry.DoWithResult(ctx, w.retry, func() (string, error) {
		h := sha256.New()

		data, err := src.Read()
		if err != nil {
			return "", classifyWatchErr(err)
		}
		h.Write(data)

		for _, dep := range deps {
			sib, err := src.ReadSibling(dep)
			if err != nil {
				return "", classifyWatchErr(err)
			}
			h.Write(sib)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	})
}

func classifyWatchErr(err error) error {
	if errors.IsTransient(err) {
		return err
	}
	return retry.NonRetryable(err)
}
