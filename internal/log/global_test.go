package log

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger(t *testing.T) {
	t.Cleanup(func() { SetDefaultLogger(nil) })

	SetDefaultLogger(nil)
	first := DefaultLogger()
	assert.NotNil(t, first)
	assert.Same(t, first, DefaultLogger(), "fallback is created once")

	custom := New(Config{Level: slog.LevelDebug})
	SetDefaultLogger(custom)
	assert.Same(t, custom, DefaultLogger())
}

func TestDefaultLoggerConcurrent(t *testing.T) {
	t.Cleanup(func() { SetDefaultLogger(nil) })
	SetDefaultLogger(nil)

	var wg sync.WaitGroup
	got := make([]*Logger, 16)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = DefaultLogger()
		}()
	}
	wg.Wait()
	for _, l := range got {
		assert.Same(t, got[0], l)
	}
}

func TestOrDefault(t *testing.T) {
	t.Cleanup(func() { SetDefaultLogger(nil) })
	custom := Discard()
	SetDefaultLogger(custom)

	assert.Same(t, custom, OrDefault(nil))
	other := Discard()
	assert.Same(t, other, OrDefault(other))
}
