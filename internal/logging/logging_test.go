package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("debug", "json", &buf)

	Source(l, "pipeline").Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pipeline", line["source"])
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_BadLevelFallsBack(t *testing.T) {
	l := New("nope", "text")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}
