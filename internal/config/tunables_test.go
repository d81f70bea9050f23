package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEngine() EngineConfig {
	return EngineConfig{
		LatencyMultiplier:        3.0,
		ErrorRateThreshold:       0.2,
		MinSamplesForBaseline:    10,
		AnalysisWindowMinutes:    5,
		BaselineWindowMinutes:    60,
		CorrelationWindowMinutes: 5,
		IncidentTTLMinutes:       30,
		TickIntervalSeconds:      30,
	}
}

func TestRuntimeSnapshot(t *testing.T) {
	rt := NewRuntime(defaultEngine())

	engine := rt.Engine()
	assert.Equal(t, 3.0, engine.LatencyMultiplier)

	updated := defaultEngine()
	updated.LatencyMultiplier = 5.0
	rt.update(updated)

	assert.Equal(t, 5.0, rt.Engine().LatencyMultiplier)
	// The earlier snapshot is unaffected.
	assert.Equal(t, 3.0, engine.LatencyMultiplier)
}

func TestWatcherNoPath(t *testing.T) {
	w, err := NewWatcher("", NewRuntime(defaultEngine()), noopLogger{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestWatcherReloadsTunables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  latency_multiplier: 3.0\n"), 0o644))

	rt := NewRuntime(defaultEngine())
	w, err := NewWatcher(path, rt, noopLogger{})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  latency_multiplier: 4.0\n"), 0o644))

	assert.Eventually(t, func() bool {
		return rt.Engine().LatencyMultiplier == 4.0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherKeepsValuesOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  latency_multiplier: 3.0\n"), 0o644))

	rt := NewRuntime(defaultEngine())
	w, err := NewWatcher(path, rt, noopLogger{})
	require.NoError(t, err)
	defer w.Close()

	// Invalid multiplier must be rejected by validation.
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  latency_multiplier: 0.1\n"), 0o644))

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 3.0, rt.Engine().LatencyMultiplier)
}

type noopLogger struct{}

func (noopLogger) Info(msg string, fields ...interface{}) {}
func (noopLogger) Warn(msg string, fields ...interface{}) {}
