package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"source unreadable is transient", ErrSourceUnreadable, ErrorTransient},
		{"dispatch failure is invalid", ErrDispatchFailed, ErrorInvalid},
		{"parse failure is invalid", ErrParseFailed, ErrorInvalid},
		{"missing representation is fatal", ErrNoRepresentation, ErrorFatal},
		{"missing audio clock is fatal", ErrNoAudioClock, ErrorFatal},
		{"invalid config is fatal", ErrInvalidConfig, ErrorFatal},
		{"unknown error defaults to transient", errors.New("boom"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapPattern(t *testing.T) {
	base := errors.New("file gone")
	err := Wrap(base, "Watcher", "probe", "stat source")

	require.Error(t, err)
	assert.Equal(t, "Watcher.probe: stat source failed: file gone", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassifiedWrappersOverrideSentinelClass(t *testing.T) {
	// A transient sentinel explicitly wrapped as invalid must classify as invalid.
	err := WrapInvalid(ErrSourceUnreadable, "Dispatcher", "Dispatch", "content probe")

	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Dispatcher", ce.Component)
	assert.Equal(t, "Dispatch", ce.Operation)
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	base := fmt.Errorf("underlying")
	err := WrapFatal(base, "Registry", "Validate", "representation check")

	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, base))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestToRetryConfig(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    2,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}

	cfg := rc.ToRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts, "retries are additional attempts")
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
