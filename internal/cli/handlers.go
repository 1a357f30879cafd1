package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BartekS5/taprun/internal/config"
	"github.com/BartekS5/taprun/internal/etl"
	"github.com/BartekS5/taprun/pkg/database"
	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/spf13/cobra"
)

func setupLogging(opts *GlobalOptions) (slog.Level, error) {
	level := opts.LogLevel
	if level == "" {
		level = os.Getenv("TAPRUN_LOG_LEVEL")
	}
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return lvl, apperrors.Wrap(apperrors.KindConfig, err, "CLI", "SetupLogging")
	}
	logger.Init(os.Stderr, lvl)
	return lvl, nil
}

// sessionReader picks where the dynamic session payload comes from. A
// terminal on stdin means nobody piped a session in.
func sessionReader(cmd *cobra.Command, opts *GlobalOptions) (io.Reader, func(), error) {
	noop := func() {}
	if opts.SessionFile != "" {
		f, err := os.Open(opts.SessionFile)
		if err != nil {
			return nil, noop, apperrors.Wrap(apperrors.KindConfig, err, "CLI", "OpenSession")
		}
		return f, func() { f.Close() }, nil
	}
	if opts.NoStdin {
		return nil, noop, nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return nil, noop, nil
		}
	}
	return in, noop, nil
}

// buildSettings resolves flags into settings. Commands that start the tap
// pass full=true to read the session payload and enforce required keys.
func buildSettings(cmd *cobra.Command, opts *GlobalOptions, full bool) (*config.Settings, error) {
	lvl, err := setupLogging(opts)
	if err != nil {
		return nil, err
	}

	var session io.Reader
	if full {
		r, closeFn, err := sessionReader(cmd, opts)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		session = r
	}

	s, err := config.Build(config.Options{
		PipelineFile: opts.PipelineFile,
		EnvFile:      opts.EnvFile,
		WorkDir:      opts.WorkDir,
		TapBin:       opts.TapBin,
		ConfigPath:   opts.ConfigPath,
		Properties:   opts.Properties,
		StatePath:    opts.StatePath,
		StateBackend: opts.StateBackend,
		MetricsFile:  opts.MetricsFile,
		Session:      session,
		SkipRequired: !full,
	})
	if err != nil {
		return nil, err
	}
	logger.Init(os.Stderr, lvl, "tap", s.Pipeline.Tap)
	return s, nil
}

func newRunner(s *config.Settings) *etl.ProcessRunner {
	binary := s.TapBinary
	if binary == "" {
		binary = s.Pipeline.Tap
	}
	return &etl.ProcessRunner{
		Binary:   binary,
		BaseArgs: s.Pipeline.BaseArgs,
	}
}

// openStore connects the configured checkpoint store. The returned close
// function is always safe to call.
func openStore(ctx context.Context, s *config.Settings) (etl.CheckpointStore, func(), error) {
	noop := func() {}
	backend := s.Pipeline.State

	switch backend.Backend {
	case "", config.BackendFile:
		return &etl.FileStore{Path: s.Paths.State}, noop, nil

	case config.BackendMongo:
		dsn, err := lookupDSN(s, backend.DSNEnv, "MONGO_CONNECTION_STRING")
		if err != nil {
			return nil, noop, err
		}
		client, err := database.ConnectMongo(ctx, dsn)
		if err != nil {
			return nil, noop, apperrors.Wrap(apperrors.KindCheckpoint, err, "CLI", "ConnectMongo")
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return etl.NewMongoStore(client, backend.Database, backend.Collection, s.Pipeline.Tap), closeFn, nil

	case config.BackendSQLServer:
		dsn, err := lookupDSN(s, backend.DSNEnv, "SQL_CONNECTION_STRING")
		if err != nil {
			return nil, noop, err
		}
		db, err := database.ConnectSQL(ctx, dsn)
		if err != nil {
			return nil, noop, apperrors.Wrap(apperrors.KindCheckpoint, err, "CLI", "ConnectSQL")
		}
		closeFn := func() { db.Close() }
		store, err := etl.NewSQLStore(db, backend.Table, s.Pipeline.Tap)
		if err != nil {
			closeFn()
			return nil, noop, apperrors.Wrap(apperrors.KindConfig, err, "CLI", "NewSQLStore")
		}
		if err := store.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, noop, apperrors.Wrap(apperrors.KindCheckpoint, err, "CLI", "EnsureSchema")
		}
		return store, closeFn, nil

	default:
		return nil, noop, apperrors.Wrap(apperrors.KindConfig,
			fmt.Errorf("unknown state backend %q", backend.Backend), "CLI", "OpenStore")
	}
}

func lookupDSN(s *config.Settings, envVar, fallback string) (string, error) {
	if envVar == "" {
		envVar = fallback
	}
	dsn, ok := s.Env.Lookup(envVar)
	if !ok || dsn == "" {
		return "", apperrors.Wrap(apperrors.KindConfig,
			fmt.Errorf("%s environment variable not set", envVar), "CLI", "LookupDSN")
	}
	return dsn, nil
}

// ReportError logs the single terminal diagnostic for a failed command.
func ReportError(err error) {
	var re *apperrors.RunError
	if errors.As(err, &re) {
		args := []any{"kind", re.Kind.String(), "retryable", re.Retryable()}
		if re.Diagnostic != "" {
			args = append(args, "diagnostic", re.Diagnostic)
		}
		logger.L().Error(fmt.Sprintf("Tap execution failed: %v", err), args...)
		return
	}
	logger.Errorf("Tap execution failed: %v", err)
}
