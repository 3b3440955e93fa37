package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{name: "debug production", level: "debug"},
		{name: "info development", level: "info", development: true},
		{name: "warn production", level: "warn"},
		{name: "error production", level: "error"},
		{name: "invalid level", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	require.NotNil(t, log)

	// Should not panic
	log.Infof("discarded %d", 1)
	log.Errorw("discarded", "key", "value")
}

func TestWithComponent(t *testing.T) {
	log := NewNopLogger()
	child := log.WithComponent("ingestor")
	require.NotNil(t, child)
	assert.NotSame(t, log, child)
}

type fakeLevels struct {
	levels      map[string]string
	fallback    string
	development bool
}

func (f *fakeLevels) GetComponentLevel(component string) string {
	if level, ok := f.levels[component]; ok {
		return level
	}
	return f.fallback
}

func (f *fakeLevels) IsDevelopment() bool { return f.development }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		log := NewComponentLoggerFromConfig("ingestor", nil)
		require.NotNil(t, log)
	})

	t.Run("component level honored", func(t *testing.T) {
		cfg := &fakeLevels{
			levels:   map[string]string{"ingestor": "debug"},
			fallback: "info",
		}
		log := NewComponentLoggerFromConfig("ingestor", cfg)
		require.NotNil(t, log)
	})

	t.Run("invalid level falls back", func(t *testing.T) {
		cfg := &fakeLevels{fallback: "loud"}
		log := NewComponentLoggerFromConfig("ingestor", cfg)
		require.NotNil(t, log)
	})
}
