package etl

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BartekS5/taprun/internal/config"
	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRun struct {
	pipeline *Pipeline
	out      *bytes.Buffer
	paths    config.Paths
	marker   string
}

func newTestRun(t *testing.T, scenario string, env ...string) *testRun {
	t.Helper()
	dir := t.TempDir()
	paths := config.Paths{
		WorkDir:    dir,
		Config:     filepath.Join(dir, "tap-fake-config.json"),
		Properties: filepath.Join(dir, "tap-fake-properties.json"),
		State:      filepath.Join(dir, "tap-fake-state.json"),
	}
	marker := filepath.Join(dir, "invocations.log")
	s := &config.Settings{
		Pipeline: models.PipelineDefinition{
			Tap:     "tap-fake",
			Streams: []string{"issues", "commits"},
		},
		RunConfig: config.NewRunConfig(map[string]any{
			"access_token": "secret",
			"start_date":   "2023-01-01T00:00:00Z",
		}),
		Paths: paths,
	}
	out := &bytes.Buffer{}
	runner := fakeRunner(scenario, append([]string{"FAKE_TAP_MARKER=" + marker}, env...)...)
	return &testRun{
		pipeline: NewPipeline(s, runner, &FileStore{Path: paths.State}, out),
		out:      out,
		paths:    paths,
		marker:   marker,
	}
}

func (r *testRun) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(r.marker)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

type countingDiscoverer struct {
	calls int
}

func (c *countingDiscoverer) Discover(ctx context.Context, configPath string) (*models.Catalog, error) {
	c.calls++
	return nil, stderrors.New("discovery should not run")
}

func TestPipelineCommitsLastState(t *testing.T) {
	r := newTestRun(t, "state-then-record")

	res, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageDone, r.pipeline.Stage())
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Committed)
	assert.Equal(t, r.pipeline.RunID, res.RunID)

	assert.Equal(t, `{"issues":"2024-01-01"}`, readFile(t, r.paths.State))
	assert.Equal(t,
		`{"type":"STATE","value":{"issues":"2024-01-01"}}`+"\n"+
			`{"type":"RECORD","stream":"issues","record":{"id":1}}`+"\n",
		r.out.String())

	props := loadCatalog(t, readFile(t, r.paths.Properties))
	assert.Equal(t, []string{"issues", "commits"}, props.SelectedStreams())

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, r.paths.Config)), &cfg))
	assert.Equal(t, "secret", cfg["access_token"])
	info, err := os.Stat(r.paths.Config)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPipelineCrashKeepsCheckpoint(t *testing.T) {
	r := newTestRun(t, "crash")
	require.NoError(t, os.WriteFile(r.paths.State, []byte(`{"issues":"2023-12-31"}`), 0o644))

	res, err := r.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrProcess))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, StageFailed, r.pipeline.Stage())
	assert.Equal(t, 137, res.ExitCode)
	assert.False(t, res.Committed)
	assert.True(t, res.CheckpointSeen, "the STATE was observed but must not be committed")

	assert.Equal(t, `{"issues":"2023-12-31"}`, readFile(t, r.paths.State))

	var re *apperrors.RunError
	require.True(t, stderrors.As(err, &re))
	assert.Contains(t, re.Diagnostic, "Traceback: killed")
}

func TestPipelineCachedPropertiesSkipDiscovery(t *testing.T) {
	r := newTestRun(t, "no-state")
	cached := `{"streams":[{"tap_stream_id":"issues","metadata":[{"breadcrumb":[],"metadata":{"selected":true}}]}]}`
	require.NoError(t, os.WriteFile(r.paths.Properties, []byte(cached), 0o644))
	d := &countingDiscoverer{}
	r.pipeline.Discoverer = d

	res, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, d.calls)
	assert.False(t, res.Committed)
	assert.Equal(t, cached, readFile(t, r.paths.Properties))
	assert.Equal(t, `{}`, readFile(t, r.paths.State), "no STATE leaves the initial checkpoint")

	calls := r.invocations(t)
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0], "--discover")
}

func TestPipelineForwardsMalformedLines(t *testing.T) {
	r := newTestRun(t, "malformed")

	res, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"SCHEMA","stream":"issues","schema":{}}`+"\n"+
			"not json\n"+
			`{"type":"STATE","value":{"issues":"2024-03-03"}}`+"\n",
		r.out.String())
	assert.Equal(t, 1, res.Stats.DecodeWarnings)
	assert.Equal(t, `{"issues":"2024-03-03"}`, readFile(t, r.paths.State))
}

func TestPipelineDiscoveryFailureStartsNothing(t *testing.T) {
	r := newTestRun(t, "state-then-record", "FAKE_TAP_DISCOVER=fail")

	_, err := r.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrDiscovery))
	assert.Equal(t, StageFailed, r.pipeline.Stage())

	_, statErr := os.Stat(r.paths.Properties)
	assert.True(t, os.IsNotExist(statErr), "no properties file after failed discovery")

	calls := r.invocations(t)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "--discover")
	assert.Empty(t, r.out.String())
}

func TestPipelineCancellationCommitsNothing(t *testing.T) {
	r := newTestRun(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	res, err := r.pipeline.Run(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)
	assert.True(t, IsCancelled(err))
	assert.True(t, stderrors.Is(err, apperrors.ErrProcess))
	assert.False(t, res.Committed)
	assert.Equal(t, `{}`, readFile(t, r.paths.State))
}

func TestPipelinePassesResourcesToTap(t *testing.T) {
	r := newTestRun(t, "echo-args")

	_, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)

	var msg struct {
		Record struct {
			Args   []string `json:"args"`
			State  string   `json:"state"`
			Config string   `json:"config"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(r.out.Bytes(), &msg))
	assert.Equal(t, []string{
		"--config", r.paths.Config,
		"--properties", r.paths.Properties,
		"--state", r.paths.State,
	}, msg.Record.Args)
	assert.Equal(t, `{}`, msg.Record.State, "state file exists before the first run")
	assert.JSONEq(t, `{"access_token":"secret","start_date":"2023-01-01T00:00:00Z"}`, msg.Record.Config)

	calls := r.invocations(t)
	require.Len(t, calls, 2)
	assert.Equal(t, "--config "+r.paths.Config+" --discover", calls[0])
}

func TestPipelineUsesConfigOverrideVerbatim(t *testing.T) {
	r := newTestRun(t, "echo-args")
	custom := `{"hand_written": true}`
	require.NoError(t, os.WriteFile(r.paths.Config, []byte(custom), 0o644))
	r.pipeline.Paths.ConfigOverride = true

	_, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)

	var msg struct {
		Record struct {
			Config string `json:"config"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(r.out.Bytes(), &msg))
	assert.Equal(t, custom, msg.Record.Config)
}

func TestPipelineWritesMetricsFile(t *testing.T) {
	r := newTestRun(t, "state-then-record")
	r.pipeline.MetricsFile = filepath.Join(r.paths.WorkDir, "taprun.prom")

	_, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)

	text := readFile(t, r.pipeline.MetricsFile)
	assert.Contains(t, text, `taprun_last_run_success{tap="tap-fake"} 1`)
	assert.Contains(t, text, `taprun_checkpoint_commits_total{tap="tap-fake"} 1`)
	assert.Contains(t, text, `taprun_messages_total{tap="tap-fake",type="STATE"} 1`)
	assert.Contains(t, text, `taprun_child_exit_code{tap="tap-fake"} 0`)
}

func TestPipelineDrainsNoisyTap(t *testing.T) {
	r := newTestRun(t, "noisy-stderr")

	res, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1025, res.Stats.LinesForwarded)
	assert.Equal(t, `{"n":1023}`, readFile(t, r.paths.State))
}

func TestPipelineForwardsCRLFLinesUnchanged(t *testing.T) {
	r := newTestRun(t, "crlf")

	_, err := r.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"{\"type\":\"RECORD\",\"stream\":\"issues\",\"record\":{}}\r\n"+
			"{\"type\":\"STATE\",\"value\":{\"issues\":\"2024-06-06\"}}\r\n",
		r.out.String())
	assert.Equal(t, `{"issues":"2024-06-06"}`, readFile(t, r.paths.State))
}
