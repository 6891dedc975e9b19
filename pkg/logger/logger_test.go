package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	log := New("order-service", &buf)

	log.Info("req-1", "order_created", "Order created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "order-service", entry["service"])
	assert.Equal(t, "order_created", entry["action"])
	assert.Equal(t, "Order created", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.NotEmpty(t, entry["timestamp"])
	assert.NotContains(t, entry, "error")
}

func TestLoggerErrorCarriesMessageAndStack(t *testing.T) {
	var buf bytes.Buffer
	log := New("order-service", &buf)

	log.Error("req-2", "history_insert_failed", "Failed to archive order", errors.New("connection reset"))

	var entry struct {
		Level string `json:"level"`
		Error struct {
			Msg   string `json:"msg"`
			Stack string `json:"stack"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry.Level)
	assert.Equal(t, "connection reset", entry.Error.Msg)
	assert.NotEmpty(t, entry.Error.Stack)
}

func TestSetLevelSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New("tracking-service", &buf)
	log.SetLevel("info")

	log.Debug("", "noise", "should not appear")
	assert.Zero(t, buf.Len())
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
