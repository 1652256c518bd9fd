package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "auto", c.Evaluator.Backend)
	assert.Equal(t, 100, c.Evaluator.MaxCandidates)
	assert.Equal(t, 100, c.Evaluator.MinPoints)
	assert.Equal(t, 0, c.Evaluator.HeuristicMaxCandidates)
	assert.Equal(t, 1, c.Evaluator.HeuristicMinPoints)
	assert.Equal(t, "python3", c.Inference.Interpreter)
	assert.Equal(t, "predict_service.py", c.Inference.ScriptPath)
	assert.Equal(t, "exoplanet_model.h5", c.Inference.ModelPath)
	assert.Equal(t, 30*time.Second, c.Inference.Timeout)
	assert.Equal(t, 4, c.Inference.MaxConcurrent)
	assert.Equal(t, 0.5, c.Heuristic.DecisionThreshold)
	assert.Equal(t, 3, c.Heuristic.MinDips)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, "none", c.History.Sink)
}

func TestParse_YAMLOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
metrics:
  enabled: false
evaluator:
  backend: heuristic
inference:
  timeout: 2s
  max_concurrent: 8
heuristic:
  jitter_magnitude: 0
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.False(t, c.Metrics.Enabled)
	assert.Equal(t, "heuristic", c.Evaluator.Backend)
	assert.Equal(t, 2*time.Second, c.Inference.Timeout)
	assert.Equal(t, 8, c.Inference.MaxConcurrent)
	assert.Equal(t, 0.0, c.Heuristic.JitterMagnitude)
	assert.Equal(t, 0.2, c.Heuristic.StdDevWeight)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown environment", "environment: moon\n"},
		{"unknown backend", "environment: test\nevaluator:\n  backend: gpu\n"},
		{"zero timeout", "environment: test\ninference:\n  timeout: 0s\n"},
		{"jitter above one", "environment: test\nheuristic:\n  jitter_magnitude: 2\n"},
		{"consumer without kafka sink", "environment: test\nkafka:\n  consumer:\n    enabled: true\n"},
		{"queue without cache", "environment: test\nqueue:\n  enabled: true\ncache:\n  type: none\n"},
		{"model backend without script", "environment: test\nevaluator:\n  backend: model\ninference:\n  script_path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Error(t, c.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"PORT":                   "9090",
		"EXOSCAN_BACKEND":        "model",
		"EXOSCAN_MODEL_PATH":     "/models/exo.h5",
		"EXOSCAN_WORKER_TIMEOUT": "45s",
		"KAFKA_BROKERS":          "k1:9092,k2:9092",
		"CLICKHOUSE_HOST":        "ch",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "model", c.Evaluator.Backend)
	assert.Equal(t, "/models/exo.h5", c.Inference.ModelPath)
	assert.Equal(t, 45*time.Second, c.Inference.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "ch", c.ClickHouse.Host)
}

func TestLoad_SampleConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, "memory", c.Cache.Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o644))
	t.Setenv("EXOSCAN_BACKEND", "heuristic")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", c.Evaluator.Backend)
}
