package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCLIHelperProcess is a minimal tap used by the end-to-end tests.
func TestCLIHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_CLI_HELPER") != "1" {
		return
	}
	for _, a := range os.Args {
		if a == "--discover" {
			fmt.Println(`{"streams":[{"tap_stream_id":"issues"},{"tap_stream_id":"stars"}]}`)
			os.Exit(0)
		}
	}
	fmt.Println(`{"type":"RECORD","stream":"issues","record":{"id":7}}`)
	fmt.Println(`{"type":"STATE","value":{"issues":"2024-05-05"}}`)
	os.Exit(0)
}

func writePipeline(t *testing.T, dir string) string {
	t.Helper()
	doc := fmt.Sprintf(`tap: tap-fake
binary: %q
base_args: ["-test.run=^TestCLIHelperProcess$", "--"]
streams: [issues]
config:
  env:
    token: FAKE_TOKEN
  required: [token]
`, os.Args[0])
	path := filepath.Join(dir, "taprun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(""))
	base := []string{
		"--work-dir", dir,
		"--env-file", filepath.Join(dir, ".env"),
		"--pipeline", filepath.Join(dir, "taprun.yaml"),
		"--no-stdin",
	}
	cmd.SetArgs(append(args, base...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootHasCommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "discover", "state", "clean"})
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FAKE_TOKEN=abc\n"), 0o600))
	t.Setenv("GO_WANT_CLI_HELPER", "1")

	out, err := execute(t, dir, "run")
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"RECORD","stream":"issues","record":{"id":7}}`+"\n"+
			`{"type":"STATE","value":{"issues":"2024-05-05"}}`+"\n",
		out)

	state, err := os.ReadFile(filepath.Join(dir, "tap-fake-state.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"issues":"2024-05-05"}`, string(state))

	props, err := os.ReadFile(filepath.Join(dir, "tap-fake-properties.json"))
	require.NoError(t, err)
	assert.Contains(t, string(props), `"selected": true`)

	shown, err := execute(t, dir, "state", "show")
	require.NoError(t, err)
	assert.Equal(t, `{"issues":"2024-05-05"}`+"\n", shown)
}

func TestRunMissingRequiredConfig(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir)
	t.Setenv("FAKE_TOKEN", "")

	_, err := execute(t, dir, "run")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
	assert.NoFileExists(t, filepath.Join(dir, "tap-fake-config.json"))
}

func TestStateShowAndReset(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir)

	out, err := execute(t, dir, "state", "show")
	require.NoError(t, err)
	assert.Equal(t, "{}\n", out)

	statePath := filepath.Join(dir, "tap-fake-state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"issues":"x"}`), 0o644))
	out, err = execute(t, dir, "state", "show")
	require.NoError(t, err)
	assert.Equal(t, `{"issues":"x"}`+"\n", out)

	_, err = execute(t, dir, "state", "reset")
	require.NoError(t, err)
	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir)
	files := map[string]string{
		"config":     filepath.Join(dir, "tap-fake-config.json"),
		"properties": filepath.Join(dir, "tap-fake-properties.json"),
		"state":      filepath.Join(dir, "tap-fake-state.json"),
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(f, []byte(`{}`), 0o644))
	}

	_, err := execute(t, dir, "clean")
	require.NoError(t, err)
	assert.NoFileExists(t, files["config"])
	assert.NoFileExists(t, files["properties"])
	assert.FileExists(t, files["state"])

	_, err = execute(t, dir, "clean", "--all")
	require.NoError(t, err)
	assert.NoFileExists(t, files["state"])
}

func TestUnknownStateBackend(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir)

	_, err := execute(t, dir, "state", "show", "--state-backend", "redis")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConfig, apperrors.KindOf(err))
}
