package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "production", "info")
	defer SetOutput(os.Stdout, "development", "debug")

	Debug("hidden %d", 1)
	Info("message %s stored", "m1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "message m1 stored", entry["message"])
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "production", "debug")
	defer SetOutput(os.Stdout, "development", "debug")

	l := With("presence")
	l.Info().Str("user_id", "u1").Msg("joined")

	assert.Contains(t, buf.String(), `"component":"presence"`)
	assert.Contains(t, buf.String(), `"user_id":"u1"`)
}

func TestWithContextPrefix(t *testing.T) {
	assert.Equal(t, "[req-1] hello bob", WithContext("req-1", "hello %s", "bob"))
	assert.Equal(t, "hello", WithContext(nil, "hello"))
}
