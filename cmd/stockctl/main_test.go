package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelpListsCommands(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, newApp(&out).Run([]string{"stockctl", "--help"}))
	for _, name := range []string{"migrate", "alerts", "jobs"} {
		require.Contains(t, out.String(), name)
	}
}

func TestJobsTriggerRejectsUnknownTask(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"stockctl", "jobs", "trigger", "mail:send"})
	require.ErrorContains(t, err, `unsupported job "mail:send"`)
}

func TestJobsTriggerRequiresTaskType(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"stockctl", "jobs", "trigger"})
	require.ErrorContains(t, err, "task type required")
}

func TestMigrateDownRejectsNegativeSteps(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"stockctl", "migrate", "down", "--steps", "-2"})
	require.ErrorContains(t, err, "steps must be positive")
}
