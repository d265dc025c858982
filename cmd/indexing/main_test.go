package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "discover", "sync", "consolidate-history", "clean-history"}, names)
}

func TestRootCommand_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{name: "unknown sync kind", args: []string{"sync", "--kind", "product"}, message: `--kind must be "entity" or "attribute"`},
		{name: "unknown discover kind", args: []string{"discover", "--kind", "cms", "--file", "x.json"}, message: `got "cms"`},
		{name: "discover without file", args: []string{"discover"}, message: `required flag(s) "file" not set`},
		{name: "unknown command", args: []string{"reindex"}, message: `unknown command "reindex"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCommand()
			root.SetArgs(tt.args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestSyncCommand_Flags(t *testing.T) {
	cmd := newSyncCommand(&options{})
	require.NoError(t, cmd.ParseFlags([]string{"--api-key", "K1,K2", "--type", "KLEVU_PRODUCT", "--kind", "attribute"}))

	keys, err := cmd.Flags().GetStringSlice("api-key")
	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "K2"}, keys)

	kind, err := cmd.Flags().GetString("kind")
	require.NoError(t, err)
	assert.Equal(t, kindAttribute, kind)
}
