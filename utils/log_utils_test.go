package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	debug = false
	LogDebug("Skipping non-MLO image %s", "1-1.dcm")
	assert.Equal(t, 0, logs.Len())

	debug = true
	defer func() { debug = false }()
	LogDebug("Skipping non-MLO image %s", "1-1.dcm")
	LogInfo("Loaded %d files", 2)
	LogError(nil)
	LogError(errors.New("boom"))

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "Skipping non-MLO image 1-1.dcm", entries[0].Message)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, "Loaded 2 files", entries[1].Message)
		assert.Equal(t, "boom", entries[2].Message)
	}
}
