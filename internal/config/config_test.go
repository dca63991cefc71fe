package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"kafka"}, cfg.Notifiers)
	assert.Equal(t, 5*time.Minute, cfg.ProductTTL)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 4, cfg.InvoicerWorker)
	assert.Empty(t, cfg.OTelEndpoint)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("NOTIFIERS", "Redis,log")
	t.Setenv("NOTIFY_TIMEOUT", "750ms")
	t.Setenv("INVOICER_WORKERS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.Has("redis"))
	assert.True(t, cfg.Has("log"))
	assert.False(t, cfg.Has("kafka"))
	assert.Equal(t, 750*time.Millisecond, cfg.NotifyTimeout)
	assert.Equal(t, 12, cfg.InvoicerWorker)
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, b,,"))
	assert.Empty(t, splitCSV(""))
}
