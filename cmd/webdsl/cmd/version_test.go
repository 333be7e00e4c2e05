package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand_PrintsPlainOutput(t *testing.T) {
	output, err := executeCommand("version")
	require.NoError(t, err)
	assert.Contains(t, output, "webdsl v")
	assert.Contains(t, output, "Build Date")
	assert.Contains(t, output, "Git Commit")
}

func TestVersionCommand_JSONOutput(t *testing.T) {
	output, err := executeCommand("version", "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, output, `"version"`)
}

func TestVersionCommand_RejectsArguments(t *testing.T) {
	_, err := executeCommand("version", "extra")
	assert.Error(t, err)
}
