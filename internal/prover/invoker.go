package prover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/sirupsen/logrus"
)

// Result is what a successful prover run leaves behind.
type Result struct {
	Steps     []job.Step    `json:"steps"`
	ProofPath string        `json:"proof_path"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Invocation is a single attempt at proving one job.
type Invocation struct {
	Job           job.Job
	Executable    string
	ArgumentsPath string
	ProofPath     string
	// OnSubmitted, if set, is called once the prover process has started.
	OnSubmitted func()
}

type Invoker struct {
	launcher Launcher
	// Timeout bounds a single run. Zero waits indefinitely.
	Timeout time.Duration
	log     *logrus.Entry
}

func NewInvoker(launcher Launcher, timeout time.Duration, log *logrus.Entry) *Invoker {
	return &Invoker{launcher: launcher, Timeout: timeout, log: log}
}

// Run starts the prover and blocks until it exits. A run succeeds only if the
// process exits cleanly and the proof file exists afterwards.
func (i *Invoker) Run(ctx context.Context, inv Invocation) (*Result, error) {
	log := i.log.WithFields(logrus.Fields{"job": inv.Job.Label(), "executable": inv.Executable})

	executable, err := exec.LookPath(inv.Executable)
	if err != nil {
		return nil, job.NewError(job.ErrExecutableNotFound, inv.Job, inv.Executable, err)
	}
	if _, err := os.Stat(inv.ArgumentsPath); err != nil {
		return nil, job.NewError(job.ErrArgumentsNotFound, inv.Job, inv.ArgumentsPath, err)
	}
	// A proof left by an earlier run must not pass for this run's output.
	if err := os.Remove(inv.ProofPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, job.NewError(job.ErrProverProcessFailed, inv.Job, inv.ProofPath, fmt.Errorf("failed to remove stale proof: %w", err))
	}

	runCtx := ctx
	if i.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}

	start := time.Now()
	process, err := i.launcher.Launch(runCtx, Command{
		Path:          executable,
		Label:         inv.Job.Label(),
		ArgumentsPath: inv.ArgumentsPath,
		ProofPath:     inv.ProofPath,
	})
	if err != nil {
		return nil, job.NewError(classify(ctx, runCtx, err), inv.Job, executable, fmt.Errorf("failed to start: %w", err))
	}
	log.WithField("arguments", inv.ArgumentsPath).Info("prover started")
	if inv.OnSubmitted != nil {
		inv.OnSubmitted()
	}

	waitErr := process.Wait()
	elapsed := time.Since(start)
	steps := process.Steps()

	if kind := classify(ctx, runCtx, waitErr); kind != nil {
		jobErr := job.NewError(kind, inv.Job, executable, waitErr)
		jobErr.Steps = steps
		log.WithError(jobErr).WithField("elapsed", elapsed).Errorf("prover failed after %d steps", len(steps))
		return nil, jobErr
	}
	if info, err := os.Stat(inv.ProofPath); err != nil || info.IsDir() {
		if err == nil {
			err = errors.New("proof path is a directory")
		}
		jobErr := job.NewError(job.ErrMissingOutput, inv.Job, inv.ProofPath, err)
		jobErr.Steps = steps
		return nil, jobErr
	}

	if len(steps) == 0 {
		success := true
		ms := elapsed.Milliseconds()
		steps = []job.Step{{Name: "prove", Success: &success, DurationMs: &ms}}
	}
	log.WithField("elapsed", elapsed).Infof("prover finished with %d steps, proof at %s", len(steps), inv.ProofPath)
	return &Result{Steps: steps, ProofPath: inv.ProofPath, Elapsed: elapsed}, nil
}

// classify maps the way a run ended to a failure kind, or nil on success.
// Contexts are checked before the exit status so a kill caused by
// cancellation is never reported as an ordinary process failure.
func classify(parent, run context.Context, waitErr error) error {
	switch {
	case waitErr == nil:
		return nil
	case errors.Is(parent.Err(), context.Canceled):
		return job.ErrCancelled
	case errors.Is(parent.Err(), context.DeadlineExceeded), errors.Is(run.Err(), context.DeadlineExceeded):
		return job.ErrTimedOut
	}
	return job.ErrProverProcessFailed
}
