package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// execute runs the CLI against a temp home and returns combined output.
func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--home", home}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// executeJSON runs a command with --format json and decodes the data field.
func executeJSON(t *testing.T, home string, target interface{}, args ...string) {
	t.Helper()
	out, err := execute(t, home, append(args, "--format", "json")...)
	require.NoError(t, err, "output: %s", out)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, target))
}

func initProfile(t *testing.T, home, name string) string {
	t.Helper()
	var created struct {
		Name string `json:"name"`
		Peer string `json:"peer"`
	}
	executeJSON(t, home, &created, "profile", "init", "--name", name)
	require.NotEmpty(t, created.Peer)
	return created.Peer
}

func initProject(t *testing.T, home, name string) string {
	t.Helper()
	var created struct {
		URN string `json:"urn"`
	}
	executeJSON(t, home, &created, "init", "--name", name)
	require.NotEmpty(t, created.URN)
	return created.URN
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, err := execute(t, t.TempDir(), "--format", "yaml", "profile", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCommandsRequireProfile(t *testing.T) {
	home := t.TempDir()
	_, err := execute(t, home, "resolve", "something")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "grove profile init")
}

func TestProfileLifecycle(t *testing.T) {
	home := t.TempDir()

	initProfile(t, home, "work")
	initProfile(t, home, "oss")

	out, err := execute(t, home, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* oss")
	assert.Contains(t, out, "  work")

	_, err = execute(t, home, "profile", "default", "oss")
	require.NoError(t, err)

	out, err = execute(t, home, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* oss")
}

func TestResolveRoundTrip(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	projectURN := initProject(t, home, "heartwood")

	// By alias.
	out, err := execute(t, home, "resolve", "heartwood")
	require.NoError(t, err)
	assert.Contains(t, out, projectURN)

	// By digest prefix.
	prefix := projectURN[len("grove:project:") : len("grove:project:")+8]
	out, err = execute(t, home, "resolve", prefix)
	require.NoError(t, err)
	assert.Contains(t, out, projectURN)

	// Unknown input.
	_, err = execute(t, home, "resolve", "nonexistent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIssueLifecycle(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	initProject(t, home, "heartwood")

	var created struct {
		ID string `json:"id"`
	}
	executeJSON(t, home, &created,
		"issue", "create", "--project", "heartwood",
		"--title", "Flaky sync test", "--label", "bug")

	out, err := execute(t, home, "issue", "list", "--project", "heartwood")
	require.NoError(t, err)
	assert.Contains(t, out, "Flaky sync test")
	assert.Contains(t, out, "open")

	_, err = execute(t, home,
		"issue", "comment", created.ID, "--project", "heartwood",
		"--body", "also seen in CI")
	require.NoError(t, err)

	_, err = execute(t, home,
		"issue", "state", created.ID, "closed", "--project", "heartwood")
	require.NoError(t, err)

	out, err = execute(t, home, "issue", "show", created.ID, "--project", "heartwood")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: closed")
	assert.Contains(t, out, "also seen in CI")
	assert.Contains(t, out, "Labels: bug")

	// Filtering by state.
	out, err = execute(t, home, "issue", "list", "--project", "heartwood", "--state", "open")
	require.NoError(t, err)
	assert.Contains(t, out, "No issues.")
}

func TestIssueStateRejectsBadValue(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	initProject(t, home, "heartwood")

	var created struct {
		ID string `json:"id"`
	}
	executeJSON(t, home, &created,
		"issue", "create", "--project", "heartwood", "--title", "x")

	_, err := execute(t, home,
		"issue", "state", created.ID, "wontfix", "--project", "heartwood")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPatchLifecycle(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	initProject(t, home, "heartwood")

	var created struct {
		ID string `json:"id"`
	}
	executeJSON(t, home, &created,
		"patch", "create", "--project", "heartwood",
		"--title", "Fix escaping", "--target", "main", "--commit", "4f1e2d3c")

	_, err := execute(t, home,
		"patch", "review", created.ID, "--project", "heartwood",
		"--revision", "0", "--verdict", "accept", "--comment", "Looks right.")
	require.NoError(t, err)

	_, err = execute(t, home,
		"patch", "merge", created.ID, "--project", "heartwood",
		"--revision", "0", "--commit", "4f1e2d3c")
	require.NoError(t, err)

	out, err := execute(t, home, "patch", "show", created.ID, "--project", "heartwood")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: merged")
	assert.Contains(t, out, "review accept")
	assert.Contains(t, out, "merged revision 0")
}

func TestTrackingCommands(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	initProject(t, home, "heartwood")

	otherHome := t.TempDir()
	peer := initProfile(t, otherHome, "other")

	_, err := execute(t, home, "track", peer, "--project", "heartwood", "--reason", "maintainer")
	require.NoError(t, err)

	out, err := execute(t, home, "peers", "--project", "heartwood")
	require.NoError(t, err)
	assert.Contains(t, out, "track")
	assert.Contains(t, out, peer)
	assert.Contains(t, out, "maintainer")

	_, err = execute(t, home, "untrack", peer, "--project", "heartwood")
	require.NoError(t, err)

	_, err = execute(t, home, "untrack", peer, "--project", "heartwood")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSyncBetweenReplicas(t *testing.T) {
	exchange := t.TempDir()
	aliceHome := t.TempDir()
	bobHome := t.TempDir()

	alicePeer := initProfile(t, aliceHome, "alice")
	initProfile(t, bobHome, "bob")
	projectURN := initProject(t, aliceHome, "heartwood")

	// Alice opens an issue and publishes her replica.
	var created struct {
		ID string `json:"id"`
	}
	executeJSON(t, aliceHome, &created,
		"issue", "create", "--project", "heartwood", "--title", "Shared issue")
	_, err := execute(t, aliceHome,
		"sync", "--project", "heartwood", "--exchange", exchange)
	require.NoError(t, err)

	// Bob tracks alice and syncs the same project.
	_, err = execute(t, bobHome, "track", alicePeer, "--project", projectURN)
	require.NoError(t, err)
	out, err := execute(t, bobHome,
		"sync", "--project", projectURN, "--exchange", exchange)
	require.NoError(t, err, "output: %s", out)

	out, err = execute(t, bobHome, "issue", "list", "--project", projectURN)
	require.NoError(t, err)
	assert.Contains(t, out, "Shared issue")
}

func TestSyncReportsFailedPeers(t *testing.T) {
	exchange := t.TempDir()
	home := t.TempDir()
	initProfile(t, home, "work")
	projectURN := initProject(t, home, "heartwood")

	ghostHome := t.TempDir()
	ghost := initProfile(t, ghostHome, "ghost")

	// Ghost never published anything to the exchange.
	_, err := execute(t, home, "track", ghost, "--project", projectURN)
	require.NoError(t, err)

	out, err := execute(t, home, "sync", "--project", "heartwood", "--exchange", exchange)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed")
}

func TestSyncRequiresExchangeDir(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	initProject(t, home, "heartwood")

	_, err := execute(t, home, "sync", "--project", "heartwood")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "exchange")
}

func TestExchangeDirFromProfileConfig(t *testing.T) {
	home := t.TempDir()
	initProfile(t, home, "work")
	initProject(t, home, "heartwood")

	// Write the exchange dir into the profile config instead of the flag.
	exchange := t.TempDir()
	configPath := filepath.Join(home, "profiles", "work", "config.yaml")
	writeConfig(t, configPath, "sync:\n  exchange_dir: "+exchange+"\n")

	_, err := execute(t, home, "sync", "--project", "heartwood")
	require.NoError(t, err)
}
