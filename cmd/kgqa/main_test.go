package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env"), "--log-level", "disabled"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Run("Should register the subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range newRootCommand().Commands() {
			names[c.Name()] = true
		}
		assert.True(t, names["ask"])
		assert.True(t, names["serve"])
		assert.True(t, names["init-schema"])
	})

	t.Run("Should require a question", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "gsk-test")

		_, err := runCommand(t, "ask")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "please provide a question")
	})

	t.Run("Should require an API key before asking", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "")
		t.Setenv("KGQA_LLM_API_KEY", "")

		_, err := runCommand(t, "ask", "-q", "What treats migraine?")

		assert.ErrorContains(t, err, "llm.api_key is required")
	})

	t.Run("Should surface configuration errors", func(t *testing.T) {
		t.Setenv("KGQA_GRAPH_BACKEND", "sqlite")

		_, err := runCommand(t, "init-schema")

		assert.ErrorContains(t, err, "configuration validation failed")
	})
}
