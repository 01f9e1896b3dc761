package cfg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, c.Dispatcher.WorkerThreads)
	assert.True(t, c.Dispatcher.PriorityOrdering)
	assert.Equal(t, 256, c.WriteQueue.DefaultMaxQueueSize)
	assert.Equal(t, 16, c.WriteQueue.PerFDMaxQueueSize)
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("FUSE_DISPATCHER_WORKER_THREADS", "4")
	defer os.Unsetenv("FUSE_DISPATCHER_WORKER_THREADS")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, c.Dispatcher.WorkerThreads)
}
