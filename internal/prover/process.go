package prover

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/kroma-network/utxo-prover/internal/job"
	"github.com/sirupsen/logrus"
)

// waitDelay bounds how long Wait keeps reading output after the prover has
// been killed, in case it left children holding the pipes.
const waitDelay = 5 * time.Second

// Command describes one prover run.
type Command struct {
	Path          string
	Label         string
	ArgumentsPath string
	ProofPath     string
}

func (c Command) Args() []string {
	return []string{"--job", c.Label, "--arguments", c.ArgumentsPath, "--proof", c.ProofPath}
}

// Launcher starts prover processes.
type Launcher interface {
	Launch(ctx context.Context, command Command) (Process, error)
}

// Process is a started prover. Steps may be called at any time and returns
// the steps reported so far.
type Process interface {
	Wait() error
	Steps() []job.Step
}

// ExecLauncher runs the prover as a child process. The child is killed when
// the launch context is done.
type ExecLauncher struct {
	log *logrus.Entry
}

func NewExecLauncher(log *logrus.Entry) *ExecLauncher {
	return &ExecLauncher{log: log}
}

func (l *ExecLauncher) Launch(ctx context.Context, command Command) (Process, error) {
	cmd := exec.CommandContext(ctx, command.Path, command.Args()...)
	cmd.WaitDelay = waitDelay
	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	if err := cmd.Start(); err != nil {
		stdoutWriter.Close()
		stderrWriter.Close()
		return nil, err
	}
	log := l.log.WithField("pid", cmd.Process.Pid)
	p := &execProcess{cmd: cmd, stdout: stdoutWriter, stderr: stderrWriter, log: log}
	p.readers.Add(2)
	go p.readSteps(stdoutReader)
	go p.readStderr(stderrReader)
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	stdout  *io.PipeWriter
	stderr  *io.PipeWriter
	log     *logrus.Entry
	readers sync.WaitGroup

	mu    sync.Mutex
	steps []job.Step
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.stdout.Close()
	p.stderr.Close()
	p.readers.Wait()
	return err
}

func (p *execProcess) Steps() []job.Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]job.Step(nil), p.steps...)
}

func (p *execProcess) readSteps(r io.Reader) {
	defer p.readers.Done()
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		step, ok := parseStep(line)
		if !ok {
			p.log.Debugf("prover: %s", line)
			continue
		}
		p.log.WithField("step", step.Name).Infof("prover step %s", step)
		p.mu.Lock()
		p.steps = append(p.steps, step)
		p.mu.Unlock()
	}
	drain(r)
}

func (p *execProcess) readStderr(r io.Reader) {
	defer p.readers.Done()
	scanner := newLineScanner(r)
	for scanner.Scan() {
		p.log.Debugf("prover stderr: %s", scanner.Bytes())
	}
	drain(r)
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return scanner
}

// drain keeps the pipe flowing after a scan error so the child never blocks
// on a full pipe.
func drain(r io.Reader) {
	io.Copy(io.Discard, r)
}

// parseStep accepts one JSON object per line with at least a name.
func parseStep(line []byte) (job.Step, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return job.Step{}, false
	}
	var step job.Step
	if err := json.Unmarshal(line, &step); err != nil || step.Name == "" {
		return job.Step{}, false
	}
	return step, true
}
