package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BartekS5/taprun/internal/config"
	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/BartekS5/taprun/pkg/utils"
	"github.com/google/uuid"
)

// Stage is a step of a run.
type Stage string

const (
	StageInit             Stage = "INIT"
	StageEnsureConfig     Stage = "ENSURE_CONFIG"
	StageEnsureState      Stage = "ENSURE_STATE"
	StageEnsureProperties Stage = "ENSURE_PROPERTIES"
	StageRunProcess       Stage = "RUN_PROCESS"
	StageCommit           Stage = "COMMIT_OR_SKIP"
	StageDone             Stage = "DONE"
	StageFailed           Stage = "FAILED"
)

// Pipeline runs one tap extraction end to end.
type Pipeline struct {
	Tap         string
	Streams     []string
	Config      config.RunConfig
	Paths       config.Paths
	Runner      *ProcessRunner
	Discoverer  Discoverer
	Cache       PropertiesCache
	Committer   *Committer
	Sink        io.Writer
	Metrics     *Metrics
	MetricsFile string
	Logger      *slog.Logger

	// DiagnosticBytes bounds the stderr tail attached to failures.
	DiagnosticBytes int

	RunID string
	stage Stage
}

// NewPipeline wires a pipeline for settings with the default file-backed
// properties cache and a tap discoverer.
func NewPipeline(s *config.Settings, runner *ProcessRunner, store CheckpointStore, sink io.Writer) *Pipeline {
	runID := uuid.NewString()
	metrics := NewMetrics(s.Pipeline.Tap)
	log := logger.L().With("tap", s.Pipeline.Tap, "run_id", runID)
	return &Pipeline{
		Tap:         s.Pipeline.Tap,
		Streams:     s.Pipeline.Streams,
		Config:      s.RunConfig,
		Paths:       s.Paths,
		Runner:      runner,
		Discoverer:  &TapDiscoverer{Runner: runner, Logger: log},
		Cache:       &FileCache{Path: s.Paths.Properties},
		Committer:   &Committer{Store: store, StatePath: s.Paths.State, Metrics: metrics},
		Sink:        sink,
		Metrics:     metrics,
		MetricsFile: s.Pipeline.MetricsFile,
		Logger:      log,
		RunID:       runID,
		stage:       StageInit,
	}
}

// Stage reports the step the pipeline is in, or ended in.
func (p *Pipeline) Stage() Stage {
	return p.stage
}

func (p *Pipeline) enter(s Stage) {
	p.stage = s
	p.log().Debug("stage", "stage", string(s))
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger == nil {
		p.Logger = logger.L()
	}
	return p.Logger
}

func (p *Pipeline) fail(err error) error {
	p.stage = StageFailed
	return err
}

// Run executes INIT → ENSURE_CONFIG → ENSURE_STATE → ENSURE_PROPERTIES →
// RUN_PROCESS → COMMIT_OR_SKIP → DONE. Any error ends in FAILED and
// leaves the committed checkpoint as it was.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{RunID: p.RunID, ExitCode: -1}
	defer func() {
		res.Duration = time.Since(start)
		p.Metrics.finish(res.Duration.Seconds(), res.ExitCode, p.stage == StageDone)
		if err := p.Metrics.WriteTextfile(p.MetricsFile); err != nil {
			p.log().Warn("failed to write metrics file", "path", p.MetricsFile, "error", err)
		}
	}()

	p.enter(StageInit)
	p.log().Info("Starting tap extraction")

	p.enter(StageEnsureConfig)
	configPath, err := p.EnsureConfig()
	if err != nil {
		res.Err = err
		return res, p.fail(err)
	}

	p.enter(StageEnsureState)
	if err := p.Committer.Prepare(ctx); err != nil {
		res.Err = err
		return res, p.fail(err)
	}

	p.enter(StageEnsureProperties)
	propertiesPath, err := p.EnsureProperties(ctx, configPath, false)
	if err != nil {
		res.Err = err
		return res, p.fail(err)
	}

	p.enter(StageRunProcess)
	p.runProcess(ctx, configPath, propertiesPath, res)
	if res.Err != nil {
		return res, p.fail(res.Err)
	}

	p.enter(StageCommit)
	committed, err := p.Committer.Commit(ctx, res)
	if err != nil {
		res.Err = err
		return res, p.fail(err)
	}
	res.Committed = committed
	if !committed {
		p.log().Info("No STATE message observed; checkpoint left unchanged")
	}

	p.enter(StageDone)
	p.log().Info("Ingestion complete",
		"lines", res.Stats.LinesForwarded,
		"decode_warnings", res.Stats.DecodeWarnings,
		"committed", committed,
		"duration", time.Since(start).Round(time.Millisecond).String())
	return res, nil
}

// EnsureConfig writes the run config for the tap, unless an explicitly
// configured config file already exists, which is then used as is.
func (p *Pipeline) EnsureConfig() (string, error) {
	path := p.Paths.Config
	if p.Paths.ConfigOverride && utils.FileExists(path) {
		p.log().Info("Using existing config file", "path", path)
		return path, nil
	}
	doc, err := p.Config.Document()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindConfig, err, "Pipeline", "EnsureConfig")
	}
	// The config carries credentials.
	if err := utils.WriteFileAtomic(path, doc, 0o600); err != nil {
		return "", apperrors.Wrap(apperrors.KindConfig, err, "Pipeline", "EnsureConfig")
	}
	return path, nil
}

// EnsureProperties returns the properties path, discovering and selecting
// streams only when the cache has nothing. force skips the cache lookup.
func (p *Pipeline) EnsureProperties(ctx context.Context, configPath string, force bool) (string, error) {
	if !force {
		if path, ok := p.Cache.Lookup(); ok {
			p.log().Info("Properties file already exists, skipping discovery", "path", path)
			return path, nil
		}
	}

	catalog, err := p.Discoverer.Discover(ctx, configPath)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			err = apperrors.Wrap(apperrors.KindDiscovery, err, "Pipeline", "Discover")
		}
		return "", err
	}
	SelectStreams(catalog, p.Streams)

	path, err := p.Cache.Save(catalog)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindDiscovery, err, "Pipeline", "SaveProperties")
	}
	p.log().Info("Wrote properties file", "path", path, "selected", len(catalog.SelectedStreams()))
	return path, nil
}

func (p *Pipeline) runProcess(ctx context.Context, configPath, propertiesPath string, res *RunResult) {
	p.log().Info("Running tap", "config", configPath, "properties", propertiesPath, "state", p.Paths.State)

	demux := NewDemultiplexer(p.Sink, p.Metrics, p.log())
	stderr := NewStderrLogger(p.log(), p.Metrics, p.DiagnosticBytes)
	args := []string{
		"--config", configPath,
		"--properties", propertiesPath,
		"--state", p.Paths.State,
	}

	proc, err := p.Runner.Start(ctx, args, demux.Consume, stderr.Consume)
	if err != nil {
		res.Err = err
		return
	}
	p.log().Debug("tap started", "pid", proc.Pid)

	code, waitErr := proc.Wait()
	res.ExitCode = code
	res.Stats = demux.Stats()
	res.LastCheckpoint, res.CheckpointSeen = demux.LastCheckpoint()

	switch {
	case ctx.Err() != nil:
		res.Err = apperrors.WithDiagnostic(apperrors.KindProcess,
			fmt.Errorf("run cancelled: %w", context.Cause(ctx)), "Pipeline", "RunProcess", stderr.Tail())
	case waitErr != nil:
		res.Err = apperrors.WithDiagnostic(apperrors.KindProcess, waitErr, "Pipeline", "RunProcess", stderr.Tail())
	case code != 0:
		p.log().Error(fmt.Sprintf("Tap failed with return code %d", code))
		res.Err = apperrors.WithDiagnostic(apperrors.KindProcess,
			fmt.Errorf("tap exited with code %d", code), "Pipeline", "RunProcess", stderr.Tail())
	}
}

// IsCancelled reports whether err came from a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
