package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTask_Validate(t *testing.T) {
	task := &Task{ID: "t-1", Description: "implement factorial"}
	assert.NoError(t, task.Validate())

	assert.Error(t, (&Task{Description: "no id"}).Validate())
	assert.Error(t, (&Task{ID: "t-1"}).Validate())
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	nonTerminal := []TaskStatus{TaskStatusPending, TaskStatusRunning}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}
