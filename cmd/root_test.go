package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"discover", "enrich", "status", "export", "filter", "reset", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "zl-scraper", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDiscoverCommand_Flags(t *testing.T) {
	for _, name := range []string{"spec-name", "spec-id", "offset", "limit", "max-pages", "proxy-level", "facets"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(name), "discover should have --%s flag", name)
	}
	flag := discoverCmd.Flags().Lookup("max-pages")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"limit", "batch-size", "proxy-level"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "enrich should have --%s flag", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "csv", flag.DefValue)
	assert.NotNil(t, exportCmd.Flags().Lookup("output"))
}

func TestFilterCommand_Flags(t *testing.T) {
	flag := filterCmd.Flags().Lookup("min-doctors")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
	for _, name := range []string{"exclude", "format", "output", "dry-run", "show-excluded", "show-allowed"} {
		assert.NotNil(t, filterCmd.Flags().Lookup(name), "filter should have --%s flag", name)
	}
}

func TestResetCommand_StepRequired(t *testing.T) {
	flag := resetCmd.Flags().Lookup("step")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestStatusCommand_Flags(t *testing.T) {
	assert.NotNil(t, statusCmd.Flags().Lookup("by-facet"))
	flag := statusCmd.Flags().Lookup("runs")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}
