package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfigSizesForWorkers(t *testing.T) {
	cfg, err := PoolConfig("postgres://snap:pw@localhost:5432/journal", 4)
	require.NoError(t, err)
	assert.Equal(t, int32(5), cfg.MaxConns)
	assert.Equal(t, int32(0), cfg.MinConns)
	assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
	assert.Equal(t, "snapdrop-journal", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "journal", cfg.ConnConfig.Database)
}

func TestPoolConfigClampsWorkers(t *testing.T) {
	cfg, err := PoolConfig("postgres://localhost/journal", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), cfg.MaxConns)
}

func TestPoolConfigRejectsBadURL(t *testing.T) {
	_, err := PoolConfig("postgres://%zz", 1)
	assert.ErrorContains(t, err, "parse database url")
}

func TestSchemaKeysOnJobID(t *testing.T) {
	require.Len(t, schema, 2)
	assert.Contains(t, schema[0], "job_id TEXT PRIMARY KEY")
	assert.Contains(t, schema[1], "settled_at DESC")
}
