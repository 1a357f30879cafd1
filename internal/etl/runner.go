package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultGracePeriod is how long a cancelled tap gets between SIGTERM and SIGKILL.
const DefaultGracePeriod = 10 * time.Second

// StreamHandler consumes one output stream of the child until EOF.
type StreamHandler func(io.Reader) error

// ProcessRunner starts tap processes. BaseArgs go before the per-call
// arguments, which lets Binary be an interpreter.
type ProcessRunner struct {
	Binary      string
	BaseArgs    []string
	Env         []string
	Dir         string
	GracePeriod time.Duration
}

// Process is a started tap whose stdout and stderr are being drained.
type Process struct {
	cmd   *exec.Cmd
	group *errgroup.Group
	ctx   context.Context
	grace time.Duration
	pipes []io.Closer
	Pid   int
}

// Resolve returns the absolute path of the tap binary.
func (r *ProcessRunner) Resolve() (string, error) {
	if r.Binary == "" {
		return "", apperrors.Wrap(apperrors.KindSpawn, errors.New("no tap binary configured"), "Runner", "Resolve")
	}
	path, err := exec.LookPath(r.Binary)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindSpawn, err, "Runner", "Resolve")
	}
	return path, nil
}

// Start launches the tap and begins draining both output streams, each on
// its own goroutine, so a chatty stderr can never block stdout or the child.
func (r *ProcessRunner) Start(ctx context.Context, args []string, stdout, stderr StreamHandler) (*Process, error) {
	path, err := r.Resolve()
	if err != nil {
		return nil, err
	}

	argv := make([]string, 0, len(r.BaseArgs)+len(args))
	argv = append(argv, r.BaseArgs...)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, path, argv...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = r.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultGracePeriod
	}

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSpawn, err, "Runner", "StdoutPipe")
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSpawn, err, "Runner", "StderrPipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindSpawn, fmt.Errorf("start %s: %w", path, err), "Runner", "Start")
	}

	g := new(errgroup.Group)
	g.Go(func() error { return drain(outPipe, stdout) })
	g.Go(func() error { return drain(errPipe, stderr) })

	return &Process{
		cmd:   cmd,
		group: g,
		ctx:   ctx,
		grace: cmd.WaitDelay,
		pipes: []io.Closer{outPipe, errPipe},
		Pid:   cmd.Process.Pid,
	}, nil
}

func (p *Process) waitStreams() error {
	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-p.ctx.Done():
	}

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		for _, c := range p.pipes {
			_ = c.Close()
		}
		err := <-done
		if errors.Is(err, os.ErrClosed) {
			err = nil
		}
		return err
	}
}

// drain runs h and then discards whatever h left unread, so the child
// never blocks on a full pipe even when a handler gives up early.
func drain(r io.Reader, h StreamHandler) error {
	var err error
	if h != nil {
		err = h(r)
	}
	_, _ = io.Copy(io.Discard, r)
	return err
}

// Wait blocks until both streams hit EOF and the process has exited, then
// returns its exit code. A process killed by a signal reports -1. The error
// is non-nil when a stream handler failed or the wait itself failed; a
// non-zero exit alone is not an error here.
//
// Streams are drained before the process is reaped, so a background helper
// that inherits the tap's stdout keeps an uncancelled run open until it
// exits. Once the context is cancelled, the pipes are closed after the
// grace period whether or not they reached EOF.
func (p *Process) Wait() (int, error) {
	streamErr := p.waitStreams()
	waitErr := p.cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		var ee *exec.ExitError
		switch {
		case errors.As(waitErr, &ee):
			exitCode = ee.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay) && p.cmd.ProcessState != nil:
			exitCode = p.cmd.ProcessState.ExitCode()
		default:
			return -1, waitErr
		}
	}
	return exitCode, streamErr
}
