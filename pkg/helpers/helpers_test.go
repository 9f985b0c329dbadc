package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "user-service", "production")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "user-service", line["app"])
	assert.Equal(t, "logger initialized", line["msg"])

	buf.Reset()
	l = newLogger(&buf, "user-service", "development")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.Contains(t, buf.String(), `msg="logger initialized"`)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rdb.Close() })

	require.NoError(t, rdb.Ping(context.Background()).Err())
}
