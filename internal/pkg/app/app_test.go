package app

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"krosty/internal/app/infrastructure/config"
	"path/filepath"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       config.Limiter
		wantNil   bool
		wantLimit rate.Limit
		wantBurst int
	}{
		{name: "disabled", cfg: config.Limiter{}, wantNil: true},
		{
			name:      "spread over window",
			cfg:       config.Limiter{Requests: 20, Per: config.Duration(10 * time.Second)},
			wantLimit: rate.Every(500 * time.Millisecond),
			wantBurst: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := newLimiter(tt.cfg)
			if tt.wantNil {
				assert.Nil(t, l)
				return
			}
			require.NotNil(t, l)
			assert.Equal(t, tt.wantLimit, l.Limit())
			assert.Equal(t, tt.wantBurst, l.Burst())
		})
	}
}

func TestNewLimiter_DisabledConfigLoads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	manager, err := config.New(path)
	require.NoError(t, err)
	require.NoError(t, manager.Update(func(cfg *config.Config) {
		cfg.Limiter = config.Limiter{}
	}))

	// a fresh load of the saved file goes through validation again
	reloaded, err := config.New(path)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.Nil(t, newLimiter(reloaded.Get().Limiter))
	})
}
