package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camhal/internal/conf"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"simulate", "serve", "templates", "trace", "version"})
	assert.NotNil(t, root.PersistentFlags().Lookup("max-in-flight"))
}

func TestVersionCommand(t *testing.T) {
	root := RootCommand(&conf.Settings{})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "camhal ")
}
