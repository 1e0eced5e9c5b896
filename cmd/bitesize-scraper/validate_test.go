package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCmd_DefaultsAreValid(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Configuration OK")
	assert.Contains(t, out.String(), "max_pages=200")
}

func TestValidateCmd_PrintsWarnings(t *testing.T) {
	cfgPath := writeConfig(t, `
max_pages: 0
target:
  allowed_hosts: [site.tld]
`)
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", "-c", cfgPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "warning: max_pages should be > 0")
	assert.Contains(t, out.String(), "Configuration OK")
}

func TestValidateCmd_FatalError(t *testing.T) {
	cfgPath := writeConfig(t, `visited_store: redis`)
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "-c", cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visited_store")
}
