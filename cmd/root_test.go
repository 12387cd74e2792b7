package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/specgraph/config"
)

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitIDs(" a, b,,c ,"))
	assert.Empty(t, splitIDs(""))
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "DEBUG", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "render", "query", "config"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
