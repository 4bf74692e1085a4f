package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	IndexName string   `env:"TEST_CFG_INDEX" envDefault:"listings"`
	BatchSize int      `env:"TEST_CFG_BATCH_SIZE" envDefault:"200"`
	Brokers   []string `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Fresh     bool     `env:"TEST_CFG_FRESH" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "listings", cfg.IndexName)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.False(t, cfg.Fresh)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_INDEX", "listings_v2")
	t.Setenv("TEST_CFG_BATCH_SIZE", "50")
	t.Setenv("TEST_CFG_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("TEST_CFG_FRESH", "true")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "listings_v2", cfg.IndexName)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.True(t, cfg.Fresh)
}

type requiredConfig struct {
	URL string `env:"TEST_CFG_REQUIRED_URL,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_BATCH_SIZE", "two-hundred")

	var cfg testConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
