package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cocodex/cocowatch/internal/config"
	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
	"github.com/cocodex/cocowatch/internal/indexer"
	"github.com/cocodex/cocowatch/pkg/version"
)

// newTestRootCmd returns a root command wired to a buffer so tests never
// touch the real stdout.
func newTestRootCmd(args ...string) (*cobra.Command, *bytes.Buffer) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return cmd, buf
}

func TestRootCmd_Help(t *testing.T) {
	// Given: the root command with --help
	cmd, buf := newTestRootCmd("--help")

	// When: executing
	err := cmd.Execute()

	// Then: usage mentions the main flags
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "--with-mcp-server")
	assert.Contains(t, output, "--mcp-server-only")
	assert.Contains(t, output, "--debounce-seconds")
	assert.Contains(t, output, "--initial-index")
}

func TestRootCmd_Version(t *testing.T) {
	// Given: the root command with --version
	cmd, buf := newTestRootCmd("--version")

	// When: executing
	err := cmd.Execute()

	// Then: it prints the version line
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "cocowatch version "+version.Version)
}

func TestRootCmd_TooManyArgs(t *testing.T) {
	// Given: three positional args
	cmd, _ := newTestRootCmd("a", "b", "c")

	// When: executing
	err := cmd.Execute()

	// Then: cobra rejects the extra argument
	require.Error(t, err)
}

func TestBuildConfig_Defaults(t *testing.T) {
	// Given: a watch directory and no flags
	dir := t.TempDir()
	cmd := NewRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	// When: building the config
	cfg, err := buildConfig(cmd, []string{dir}, &rootFlags{})

	// Then: defaults apply and the watch path is absolute
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.WatchPath)
	assert.Equal(t, config.ModeWatchOnly, cfg.Mode)
	assert.True(t, cfg.Recursive)
	assert.Equal(t, 2*time.Second, cfg.DebounceWindow)
	assert.Equal(t, indexer.FlowDocuments, cfg.Flow)
}

func TestBuildConfig_WithMCPServerSelectsHybrid(t *testing.T) {
	// Given: only --with-mcp-server
	dir := t.TempDir()
	cmd := NewRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--with-mcp-server"}))

	// When: building the config
	cfg, err := buildConfig(cmd, []string{dir}, &rootFlags{withMCPServer: true})

	// Then: the coordinator serves while watching
	require.NoError(t, err)
	assert.Equal(t, config.ModeHybrid, cfg.Mode)
}

func TestBuildConfig_FlagOverrides(t *testing.T) {
	// Given: flags selecting serve-only with a custom debounce
	dir := t.TempDir()
	cmd := NewRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--mcp-server-only",
		"--address", "127.0.0.1:9000",
		"--debounce-seconds", "0.5",
		"--no-recursive",
		"--ignore", "*.log",
	}))
	flags := &rootFlags{
		mcpServerOnly:   true,
		address:         "127.0.0.1:9000",
		debounceSeconds: 0.5,
		noRecursive:     true,
		ignorePatterns:  []string{"*.log"},
	}

	// When: building the config
	cfg, err := buildConfig(cmd, []string{dir, "documents"}, flags)

	// Then: the flags win over the defaults
	require.NoError(t, err)
	assert.Equal(t, config.ModeServeOnly, cfg.Mode)
	assert.Equal(t, "127.0.0.1:9000", cfg.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceWindow)
	assert.False(t, cfg.Recursive)
	assert.Equal(t, "documents", cfg.Flow)
	assert.Contains(t, cfg.IgnorePatterns, "*.log")
}

func TestBuildConfig_ConflictingModes(t *testing.T) {
	// Given: both mode flags set
	dir := t.TempDir()
	cmd := NewRootCmd()
	flags := &rootFlags{withMCPServer: true, mcpServerOnly: true}

	// When: building the config
	_, err := buildConfig(cmd, []string{dir}, flags)

	// Then: it fails as a config error
	require.Error(t, err)
	assert.Equal(t, cocoerrors.CategoryConfig, cocoerrors.GetCategory(err))
}

func TestBuildConfig_MissingWatchPath(t *testing.T) {
	// Given: a watch path that does not exist
	cmd := NewRootCmd()

	// When: building the config
	_, err := buildConfig(cmd, []string{"/nonexistent/cocowatch-test"}, &rootFlags{})

	// Then: validation rejects it
	require.Error(t, err)
	assert.Equal(t, cocoerrors.ErrCodeWatchPathInvalid, cocoerrors.GetCode(err))
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing without flags
	err := cmd.Execute()

	// Then: it should output the full version string
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "cocowatch")
	assert.Contains(t, output, version.Version)
	assert.Contains(t, output, "commit")
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	// Given: a version command with --short
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--short"})

	// When: executing
	err := cmd.Execute()

	// Then: only the version number is printed
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(buf.String()))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// Given: a version command with --json
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	// When: executing
	err := cmd.Execute()

	// Then: the output is valid JSON with the build fields
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
