package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_Children(t *testing.T) {
	root := testutil.NewMockLogger()
	var _ logging.Logger = root

	child := root.Named("pipeline").With(logging.String("run_id", "r1")).Named("depth")
	child.Warn("skipped", logging.Int("n", 2))

	msg, ok := root.Find("warn", "skipped")
	require.True(t, ok)
	assert.Equal(t, "pipeline.depth", msg.Logger)
	v, ok := msg.Field("run_id")
	require.True(t, ok)
	assert.Equal(t, "r1", v)
	v, _ = msg.Field("n")
	assert.Equal(t, 2, v)

	_, ok = msg.Field("missing")
	assert.False(t, ok)
}
