package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "index", "search", "projects", "status", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "dev\n", out.String())
}

func TestVersionCommandJSON(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--json"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"version": "dev"`)
}
