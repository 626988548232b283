package di

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/internal/config"
	"github.com/aristath/mpmeasure/internal/modules/measurement"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:        t.TempDir(),
		Eps:            1e-10,
		Method:         "auto",
		NGroup:         4,
		Workers:        2,
		MemoryFraction: 0.25,
		Retention:      &config.RetentionConfig{Enabled: true, MaxAgeH: 24, Schedule: "0 0 3 * * *"},
		Archive:        &config.ArchiveConfig{},
	}
}

func TestWire(t *testing.T) {
	c, err := Wire(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Service)
	assert.NotNil(t, c.Handler)
	assert.Nil(t, c.Archive)
	assert.Equal(t, []string{"run_retention"}, c.Scheduler.Jobs())
	assert.Equal(t, measurement.MethodAuto, c.Service.Settings().Method)

	runs, err := c.Store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWire_RetentionDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention.Enabled = false

	c, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	assert.Empty(t, c.Scheduler.Jobs())
}

func TestWire_BadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retention.Schedule = "whenever"

	_, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
