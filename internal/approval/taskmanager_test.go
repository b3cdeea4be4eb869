package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskManager_StartRequiresDependenciesCompleted(t *testing.T) {
	m := NewTaskManager()
	require.NoError(t, m.Add("setup", nil))
	require.NoError(t, m.Add("build", []string{"setup"}))

	err := m.Start("build")
	require.Error(t, err)

	require.NoError(t, m.Start("setup"))
	require.NoError(t, m.Complete("setup"))

	require.NoError(t, m.Start("build"))
	task, _ := m.Get("build")
	assert.Equal(t, TaskInProgress, task.Status)
}

func TestTaskManager_SingleActiveTaskInvariant(t *testing.T) {
	m := NewTaskManager()
	require.NoError(t, m.Add("a", nil))
	require.NoError(t, m.Add("b", nil))

	require.NoError(t, m.Start("a"))
	err := m.Start("b")
	require.Error(t, err)

	require.NoError(t, m.Complete("a"))
	require.NoError(t, m.Start("b"))
}

func TestTaskManager_BlockAndResume(t *testing.T) {
	m := NewTaskManager()
	require.NoError(t, m.Add("a", nil))
	require.NoError(t, m.Start("a"))
	require.NoError(t, m.Block("a"))

	task, _ := m.Get("a")
	assert.Equal(t, TaskBlocked, task.Status)

	require.NoError(t, m.Resume("a"))
	task, _ = m.Get("a")
	assert.Equal(t, TaskInProgress, task.Status)
}

func TestTaskManager_CancelIsTerminal(t *testing.T) {
	m := NewTaskManager()
	require.NoError(t, m.Add("a", nil))
	require.NoError(t, m.Cancel("a"))

	err := m.Cancel("a")
	require.Error(t, err)

	err = m.Start("a")
	require.Error(t, err)
}

func TestTaskManager_CompletedIsTerminal(t *testing.T) {
	m := NewTaskManager()
	require.NoError(t, m.Add("a", nil))
	require.NoError(t, m.Start("a"))
	require.NoError(t, m.Complete("a"))

	err := m.Cancel("a")
	require.Error(t, err)
}
