package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_Swap(t *testing.T) {
	initial := DefaultConfig()
	h := NewHolder(initial, "/etc/drivescan/config.toml")

	assert.Same(t, initial, h.Config())
	assert.Equal(t, "/etc/drivescan/config.toml", h.Path())

	debug := DefaultConfig()
	debug.Logging.LogLevel = "debug"

	assert.Same(t, initial, h.Swap(debug))
	assert.Same(t, debug, h.Config())

	quiet := DefaultConfig()
	quiet.Logging.LogLevel = "error"

	prev := h.Swap(quiet)
	assert.Same(t, debug, prev)
	assert.Equal(t, "error", h.Config().Logging.LogLevel)
}

func TestHolder_ConcurrentReloads(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				if i%2 == 0 {
					h.Swap(DefaultConfig())
					continue
				}

				assert.NotNil(t, h.Config())
			}
		}()
	}

	wg.Wait()
}
