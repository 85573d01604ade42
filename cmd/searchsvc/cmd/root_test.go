package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// When: checking available commands
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	// Then: every operator subcommand should exist
	assert.Contains(t, names, "serve", "should have serve subcommand")
	assert.Contains(t, names, "baseline", "should have baseline subcommand")
	assert.Contains(t, names, "retention", "should have retention subcommand")
	assert.Contains(t, names, "cache", "should have cache subcommand")
}

func TestRootCmd_HasPersistentFlags(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()

	// Then: it should have the config-dir and debug persistent flags
	configFlag := cmd.PersistentFlags().Lookup("config-dir")
	require.NotNil(t, configFlag, "should have --config-dir flag")
	assert.Equal(t, ".", configFlag.DefValue)

	debugFlag := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debugFlag, "should have --debug flag")
	assert.Equal(t, "false", debugFlag.DefValue)
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	// Then: it should show usage information
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "searchsvc", "help should mention program name")
	assert.Contains(t, output, "Usage:", "help should show usage")
}

func TestBaselineCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"baseline", "--help"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "baseline")
}

func TestRetentionCmd_HasRunSubcommand(t *testing.T) {
	cmd := NewRootCmd()

	retentionCmd, _, err := cmd.Find([]string{"retention"})
	require.NoError(t, err)

	var names []string
	for _, sub := range retentionCmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "run")
}

func TestRetentionRunCmd_HasAsOfFlag(t *testing.T) {
	cmd := NewRootCmd()

	runCmd, _, err := cmd.Find([]string{"retention", "run"})
	require.NoError(t, err)

	flag := runCmd.Flags().Lookup("as-of")
	require.NotNil(t, flag, "should have --as-of flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestCacheCmd_HasStatsSubcommand(t *testing.T) {
	cmd := NewRootCmd()

	cacheCmd, _, err := cmd.Find([]string{"cache"})
	require.NoError(t, err)

	var names []string
	for _, sub := range cacheCmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "stats")
}
